package bus

import (
	"context"
	stderrors "errors"
	"sync"
)

// ErrNotSupported is returned by backends that cannot serve an operation
var ErrNotSupported = stderrors.New("operation not supported by bus backend")

// Object addresses one interface on one object exported by a service
type Object struct {
	Service   string
	Path      string
	Interface string
}

// Signal is one property-change notification.
//
// A Signal with Err set reports that the connection dropped; the
// subscription stays open if the backend reconnects on its own and is closed
// otherwise. A Signal with neither Err nor Changed follows a reconnect and
// asks the consumer to re-render what it has.
type Signal struct {
	Path      string
	Interface string
	Changed   map[string]any
	Err       error
}

// Subscription is a lazy sequence of signals for one object
type Subscription struct {
	signals <-chan Signal
	cancel  context.CancelFunc
	once    sync.Once
}

// NewSubscription wraps a backend's signal channel. cancel must make the
// producer close signals.
func NewSubscription(signals <-chan Signal, cancel context.CancelFunc) *Subscription {
	return &Subscription{signals: signals, cancel: cancel}
}

// Signals returns the channel of notifications. It is closed when the
// subscription ends, either through Close or because the connection went
// away for good.
func (s *Subscription) Signals() <-chan Signal {
	return s.signals
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Client is the session-bus collaborator used by bus-driven modules
type Client interface {
	// Subscribe starts delivering property changes for obj
	Subscribe(ctx context.Context, obj Object) (*Subscription, error)
	// Get reads the current value of a property
	Get(ctx context.Context, obj Object, property string) (any, error)
	// Set writes a property
	Set(ctx context.Context, obj Object, property string, value any) error
	// Call invokes a method on obj and returns its reply values
	Call(ctx context.Context, obj Object, method string, args ...any) ([]any, error)
	// Close releases the connection and ends every subscription
	Close() error
}

// Dialer opens a Client. Modules redial after the connection is lost.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context) (Client, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context) (Client, error) {
	return f(ctx)
}
