package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMonitor(t *testing.T) (*Monitor, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)
	m := NewMonitor()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestMonitor_Transitions(t *testing.T) {
	m, now := fixedMonitor(t)
	start := *now

	m.Register("clock")
	s, ok := m.Get("clock")
	require.True(t, ok)
	assert.True(t, s.Healthy())
	assert.Equal(t, start, s.Since)

	*now = start.Add(time.Minute)
	m.Degraded("clock", 3, errors.New("boom"))
	s, _ = m.Get("clock")
	assert.Equal(t, StateDegraded, s.State)
	assert.Equal(t, 3, s.Failures)
	assert.Equal(t, "boom", s.Message)
	assert.Equal(t, start.Add(time.Minute), s.Since)

	// Staying in the same state keeps the original timestamp
	*now = start.Add(2 * time.Minute)
	m.Degraded("clock", 4, errors.New("boom"))
	s, _ = m.Get("clock")
	assert.Equal(t, 4, s.Failures)
	assert.Equal(t, start.Add(time.Minute), s.Since)

	m.Healthy("clock")
	s, _ = m.Get("clock")
	assert.True(t, s.Healthy())
	assert.Empty(t, s.Message)
	assert.Zero(t, s.Failures)
}

func TestMonitor_RegisterKeepsExisting(t *testing.T) {
	m := NewMonitor()
	m.Unhealthy("vol", errors.New("gone"))
	m.Register("vol")

	s, _ := m.Get("vol")
	assert.Equal(t, StateUnhealthy, s.State)
}

func TestMonitor_Report(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Monitor)
		want  State
	}{
		{"empty", func(*Monitor) {}, StateHealthy},
		{"all healthy", func(m *Monitor) {
			m.Healthy("a")
			m.Healthy("b")
		}, StateHealthy},
		{"one degraded", func(m *Monitor) {
			m.Healthy("a")
			m.Degraded("b", 5, errors.New("slow"))
		}, StateDegraded},
		{"unhealthy wins", func(m *Monitor) {
			m.Degraded("a", 5, errors.New("slow"))
			m.Unhealthy("b", errors.New("dead"))
			m.Healthy("c")
		}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			tt.setup(m)
			assert.Equal(t, tt.want, m.Report().State)
		})
	}
}

func TestMonitor_ReportSorted(t *testing.T) {
	m := NewMonitor()
	for _, name := range []string{"wifi", "battery", "clock"} {
		m.Register(name)
	}

	var names []string
	for _, s := range m.Report().Modules {
		names = append(names, s.Module)
	}
	assert.Equal(t, []string{"battery", "clock", "wifi"}, names)
}

func TestMonitor_AttachedCheck(t *testing.T) {
	m, now := fixedMonitor(t)
	start := *now

	state, msg := StateHealthy, "connected, rtt 2ms"
	calls := 0
	detach := m.Attach("nats:vol", func() (State, string) {
		calls++
		return state, msg
	})

	s, ok := m.Get("nats:vol")
	require.True(t, ok)
	assert.True(t, s.Healthy())
	assert.Equal(t, "connected, rtt 2ms", s.Message)
	assert.Equal(t, 1, calls)

	*now = start.Add(time.Minute)
	state, msg = StateDegraded, "reconnecting to nats://10.1.2.3:4222"
	r := m.Report()
	assert.Equal(t, StateDegraded, r.State)
	require.Len(t, r.Modules, 1)
	assert.Equal(t, start.Add(time.Minute), r.Modules[0].Since)
	assert.NotContains(t, r.Modules[0].Message, "10.1.2.3", "check messages are sanitized like module errors")

	detach()
	detach()
	_, ok = m.Get("nats:vol")
	assert.False(t, ok)
	assert.Equal(t, StateHealthy, m.Report().State)
}

func TestMonitor_AttachReplaces(t *testing.T) {
	m := NewMonitor()
	detachOld := m.Attach("bus", func() (State, string) { return StateUnhealthy, "old" })
	m.Attach("bus", func() (State, string) { return StateHealthy, "new" })

	// Detaching a replaced check leaves the new one in place
	detachOld()
	s, ok := m.Get("bus")
	require.True(t, ok)
	assert.Equal(t, "new", s.Message)
}

func TestMonitor_NilSafe(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.Register("a")
		m.Healthy("a")
		m.Degraded("a", 1, errors.New("x"))
		m.Unhealthy("a", nil)
		m.Attach("b", func() (State, string) { return StateHealthy, "" })()
	})
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, StateHealthy, m.Report().State)
}

func TestMonitor_Concurrent(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if j%2 == 0 {
					m.Healthy("mod")
				} else {
					m.Degraded("mod", j, errors.New("flap"))
				}
				_ = m.Report()
			}
		}(i)
	}
	wg.Wait()

	_, ok := m.Get("mod")
	assert.True(t, ok)
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor()
	m.Healthy("clock")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, StateHealthy, r.State)
	require.Len(t, r.Modules, 1)
	assert.Equal(t, "clock", r.Modules[0].Module)

	m.Unhealthy("weather", errors.New("GET https://api.example.com/v1 failed"))
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "api.example.com")
}
