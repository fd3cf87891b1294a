package module

import (
	"fmt"
	"time"

	"github.com/c360/swaybar/errors"
)

// Kind names a module variant
type Kind string

// The closed set of module kinds
const (
	KindClock  Kind = "clock"
	KindBus    Kind = "bus"
	KindPoll   Kind = "poll"
	KindStatic Kind = "static"
)

// Spec is the configuration of one module, in bar order
type Spec struct {
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
	Style

	Clock  *ClockOptions  `json:"clock,omitempty"`
	Bus    *BusOptions    `json:"bus,omitempty"`
	Poll   *PollOptions   `json:"poll,omitempty"`
	Static *StaticOptions `json:"static,omitempty"`
}

// ClockOptions configures a clock
type ClockOptions struct {
	Interval  time.Duration `json:"interval,omitempty"`
	Format    string        `json:"format,omitempty"`
	AltFormat string        `json:"alt_format,omitempty"`
	Timezone  string        `json:"timezone,omitempty"`
}

// Bus click actions
const (
	ActionToggle = "toggle"
	ActionCall   = "call"
)

// Bus backends
const (
	BackendDBus = "dbus"
	BackendNATS = "nats"
)

// BusOptions configures a bus-driven module
type BusOptions struct {
	Backend   string `json:"backend,omitempty"`
	Bus       string `json:"bus,omitempty"`
	Service   string `json:"service,omitempty"`
	Path      string `json:"path"`
	Interface string `json:"interface,omitempty"`
	Property  string `json:"property,omitempty"`
	Format    string `json:"format,omitempty"`
	OnClick   string `json:"on_click,omitempty"`
	Method    string `json:"method,omitempty"`
	Args      []any  `json:"args,omitempty"`
}

// Poll sources
const (
	SourceHTTP       = "http"
	SourcePrometheus = "prometheus"
)

// PollOptions configures a poll module. A non-zero Range turns the
// Prometheus query into a range query over the last Range, evaluated
// every Step.
type PollOptions struct {
	Source         string            `json:"source,omitempty"`
	Interval       time.Duration     `json:"interval,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
	URL            string            `json:"url,omitempty"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	Field          string            `json:"field,omitempty"`
	Address        string            `json:"address,omitempty"`
	Query          string            `json:"query,omitempty"`
	Range          time.Duration     `json:"range,omitempty"`
	Step           time.Duration     `json:"step,omitempty"`
	Format         string            `json:"format,omitempty"`
	RefreshOnClick bool              `json:"refresh_on_click,omitempty"`
}

// StaticOptions configures a static or command module. Exactly one of
// Text, Command or File is set.
type StaticOptions struct {
	Text     string        `json:"text,omitempty"`
	Command  string        `json:"command,omitempty"`
	File     string        `json:"file,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	Pattern  string        `json:"pattern,omitempty"`
	Format   string        `json:"format,omitempty"`
	// OnClick maps a button number ("1", "4", ...) to a shell command
	OnClick map[string]string `json:"on_click,omitempty"`
}

// Defaults
const (
	DefaultClockInterval  = time.Second
	DefaultClockFormat    = "15:04:05 Monday 2006-01-02"
	DefaultPollInterval   = 30 * time.Second
	DefaultPollTimeout    = 5 * time.Second
	DefaultRangeStep      = time.Minute
	DefaultCommandTimeout = 5 * time.Second
	DefaultFormat         = "{{.Value}}"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...)
}

// Validate checks that the spec names a kind and carries the options that
// kind needs.
func (s Spec) Validate() error {
	if s.Name == "" {
		return invalid("module has no name")
	}
	if err := s.Style.validate(s.Name); err != nil {
		return err
	}

	switch s.Kind {
	case KindClock:
		return nil
	case KindBus:
		if s.Bus == nil || s.Bus.Path == "" {
			return invalid("bus module %q needs a path", s.Name)
		}
		switch s.Bus.Backend {
		case "", BackendDBus, BackendNATS:
		default:
			return invalid("bus module %q: unknown backend %q", s.Name, s.Bus.Backend)
		}
		switch s.Bus.OnClick {
		case "":
		case ActionToggle:
			if s.Bus.Property == "" {
				return invalid("bus module %q: toggle needs a property", s.Name)
			}
		case ActionCall:
			if s.Bus.Method == "" {
				return invalid("bus module %q: call needs a method", s.Name)
			}
		default:
			return invalid("bus module %q: unknown on_click %q", s.Name, s.Bus.OnClick)
		}
		return nil
	case KindPoll:
		if s.Poll == nil {
			return invalid("poll module %q has no poll options", s.Name)
		}
		switch s.Poll.Source {
		case "", SourceHTTP:
			if s.Poll.URL == "" {
				return invalid("poll module %q needs a url", s.Name)
			}
		case SourcePrometheus:
			if s.Poll.Address == "" || s.Poll.Query == "" {
				return invalid("poll module %q needs an address and a query", s.Name)
			}
		default:
			return invalid("poll module %q: unknown source %q", s.Name, s.Poll.Source)
		}
		if s.Poll.Range < 0 || s.Poll.Step < 0 {
			return invalid("poll module %q: negative range or step", s.Name)
		}
		if s.Poll.Range > 0 || s.Poll.Step > 0 {
			if s.Poll.Source != SourcePrometheus {
				return invalid("poll module %q: range and step need the prometheus source", s.Name)
			}
			if s.Poll.Range == 0 {
				return invalid("poll module %q: step without range", s.Name)
			}
			if s.Poll.Step > s.Poll.Range {
				return invalid("poll module %q: step %v is longer than range %v", s.Name, s.Poll.Step, s.Poll.Range)
			}
		}
		return nil
	case KindStatic:
		if s.Static == nil {
			return invalid("static module %q has no static options", s.Name)
		}
		set := 0
		for _, v := range []string{s.Static.Text, s.Static.Command, s.Static.File} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return invalid("static module %q needs exactly one of text, command or file", s.Name)
		}
		return nil
	case "":
		return invalid("module %q has no kind", s.Name)
	default:
		return invalid("module %q: unknown kind %q", s.Name, s.Kind)
	}
}
