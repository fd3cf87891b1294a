package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Monitor tracks the health of every module in a bar, plus any connection
// checks attached to it. A nil *Monitor
// accepts updates and does nothing, so modules can report unconditionally.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	checks   map[string]*checkEntry
	now      func() time.Time
}

// Check reports the live state of something the bar depends on, such as a
// bus connection. It must not call back into the Monitor.
type Check func() (State, string)

type checkEntry struct {
	check Check
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		checks:   make(map[string]*checkEntry),
		now:      time.Now,
	}
}

// Attach makes name's status come from check, evaluated each time the
// monitor is read. Attaching again under the same name replaces the check.
// The returned func detaches it and forgets the status.
func (m *Monitor) Attach(name string, check Check) (detach func()) {
	if m == nil || check == nil {
		return func() {}
	}
	entry := &checkEntry{check: check}
	m.mu.Lock()
	m.checks[name] = entry
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.checks[name] == entry {
				delete(m.checks, name)
				delete(m.statuses, name)
			}
		})
	}
}

// refresh runs the attached checks, or only name's when name is set
func (m *Monitor) refresh(name string) {
	m.mu.RLock()
	pending := make(map[string]*checkEntry, len(m.checks))
	for n, e := range m.checks {
		if name == "" || n == name {
			pending[n] = e
		}
	}
	m.mu.RUnlock()

	for n, e := range pending {
		state, msg := e.check()

		m.mu.Lock()
		// A check detached while it ran must not leave a status behind
		if m.checks[n] == e {
			m.store(n, state, msg, 0)
		}
		m.mu.Unlock()
	}
}

// Register records a module as healthy before it has reported anything
func (m *Monitor) Register(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.statuses[name]; !ok {
		m.statuses[name] = Status{Module: name, State: StateHealthy, Since: m.now()}
	}
}

// Healthy marks a module as working
func (m *Monitor) Healthy(name string) {
	m.set(name, StateHealthy, "", 0)
}

// Degraded marks a module as failing but still retrying
func (m *Monitor) Degraded(name string, failures int, err error) {
	m.set(name, StateDegraded, errText(err), failures)
}

// Unhealthy marks a module as stopped for good
func (m *Monitor) Unhealthy(name string, err error) {
	m.set(name, StateUnhealthy, errText(err), 0)
}

func (m *Monitor) set(name string, state State, msg string, failures int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(name, state, msg, failures)
}

// store needs m.mu held for writing
func (m *Monitor) store(name string, state State, msg string, failures int) {
	since := m.now()
	if prev, ok := m.statuses[name]; ok && prev.State == state {
		since = prev.Since
	}
	m.statuses[name] = Status{
		Module:   name,
		State:    state,
		Message:  sanitizeMessage(msg),
		Failures: failures,
		Since:    since,
	}
}

// Get returns the status of one module
func (m *Monitor) Get(name string) (Status, bool) {
	if m == nil {
		return Status{}, false
	}
	m.refresh(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[name]
	return s, ok
}

// Report is the bar-wide view: the worst module state plus every module
type Report struct {
	State   State    `json:"state"`
	Modules []Status `json:"modules"`
}

// Report aggregates all modules. With no modules the bar is healthy.
func (m *Monitor) Report() Report {
	r := Report{State: StateHealthy, Modules: []Status{}}
	if m == nil {
		return r
	}

	m.refresh("")
	m.mu.RLock()
	for _, s := range m.statuses {
		r.Modules = append(r.Modules, s)
		if s.State.rank() > r.State.rank() {
			r.State = s.State
		}
	}
	m.mu.RUnlock()

	sort.Slice(r.Modules, func(i, j int) bool { return r.Modules[i].Module < r.Modules[j].Module })
	return r
}

// Handler serves the report as JSON. Unhealthy bars answer 503 so simple
// monitors can alert on the status code alone.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r := m.Report()
		w.Header().Set("Content-Type", "application/json")
		if r.State == StateUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(r)
	})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
