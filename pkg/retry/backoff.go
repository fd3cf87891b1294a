package retry

import "time"

// Backoff tracks consecutive failures of one long-running task.
//
// Unlike Do, a Backoff does not own the loop: the caller reports each failure
// with Next and each success with Reset. This fits tasks that run forever and
// only need to slow down while something is broken.
//
// Backoff is not safe for concurrent use; it belongs to a single task.
type Backoff struct {
	cfg       Config
	delay     time.Duration
	failures  int
	saturated bool
}

// NewBackoff creates a backoff from cfg, falling back to DefaultConfig
// when cfg is invalid.
func NewBackoff(cfg Config) *Backoff {
	normalized, err := cfg.normalize()
	if err != nil {
		normalized, _ = DefaultConfig().normalize()
	}
	return &Backoff{cfg: normalized, delay: normalized.InitialDelay}
}

// Next records a failure and returns how long to wait before the next
// attempt. The second result is false once MaxAttempts consecutive failures
// have been recorded; MaxAttempts of 0 never gives up.
//
// Without jitter, successive delays never decrease.
func (b *Backoff) Next() (time.Duration, bool) {
	b.failures++
	if b.cfg.MaxAttempts > 0 && b.failures >= b.cfg.MaxAttempts {
		return 0, false
	}

	current := b.delay
	next := float64(b.delay) * b.cfg.Multiplier
	if next >= float64(b.cfg.MaxDelay) {
		b.delay = b.cfg.MaxDelay
	} else {
		b.delay = time.Duration(next)
	}
	// Doubling went past the cap and we are still failing.
	if current >= b.cfg.MaxDelay {
		b.saturated = true
	}

	if b.cfg.AddJitter {
		return jitter(current), true
	}
	return current, true
}

// Saturated reports whether the delay has been pinned at MaxDelay and
// failures keep coming, i.e. the backoff cap has been exceeded.
func (b *Backoff) Saturated() bool {
	return b.saturated
}

// Failures returns the number of consecutive failures recorded
func (b *Backoff) Failures() int {
	return b.failures
}

// Reset clears the failure history after a success
func (b *Backoff) Reset() {
	b.delay = b.cfg.InitialDelay
	b.failures = 0
	b.saturated = false
}

// Config returns the normalized configuration
func (b *Backoff) Config() Config {
	return b.cfg
}
