package module

import (
	"context"
	"time"

	"github.com/c360/swaybar/protocol"
)

// Clock shows the current time. A click switches between Format and
// AltFormat when the latter is configured.
type Clock struct {
	base
	interval  time.Duration
	formats   [2]string
	location  *time.Location
	now       func() time.Time
	toggle    chan struct{}
	hasToggle bool
}

// clockView is what a clock's short_format sees
type clockView struct {
	Name string
	Text string
	Time time.Time
}

func newClock(spec Spec, deps Deps) (*Clock, error) {
	opts := ClockOptions{}
	if spec.Clock != nil {
		opts = *spec.Clock
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultClockInterval
	}
	if opts.Format == "" {
		opts.Format = DefaultClockFormat
	}

	loc := time.Local
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, invalid("clock %q: timezone %q: %v", spec.Name, opts.Timezone, err)
		}
		loc = l
	}

	b, err := newBase(spec, deps)
	if err != nil {
		return nil, err
	}

	return &Clock{
		base:      b,
		interval:  opts.Interval,
		formats:   [2]string{opts.Format, opts.AltFormat},
		location:  loc,
		now:       deps.Now,
		toggle:    make(chan struct{}, 1),
		hasToggle: opts.AltFormat != "",
	}, nil
}

// Run ticks on interval boundaries and never fails
func (c *Clock) Run(ctx context.Context, sink Sink) error {
	current := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.toggle:
			current = 1 - current
		case <-timer.C:
		}

		now := c.now()
		local := now.In(c.location)
		text := local.Format(c.formats[current])
		if err := c.emitText(ctx, sink, text, clockView{Name: c.name, Text: text, Time: local}, nil); err != nil {
			return nil
		}

		// Re-arm for the next boundary. Stop+drain keeps a toggle from
		// leaving a stale tick behind.
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.untilNextTick(now))
	}
}

func (c *Clock) untilNextTick(now time.Time) time.Duration {
	next := now.Truncate(c.interval).Add(c.interval)
	return next.Sub(now)
}

// Click toggles the alternate format
func (c *Clock) Click(_ context.Context, _ protocol.ClickEvent) error {
	if !c.hasToggle {
		return nil
	}
	poke(c.toggle)
	return nil
}
