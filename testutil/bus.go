package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/c360/swaybar/bus"
)

// ErrMockDial is returned by MockDialer results configured to fail
var ErrMockDial = errors.New("mock dial failed")

// SetCall records one MockBusClient.Set
type SetCall struct {
	Object   bus.Object
	Property string
	Value    any
}

// MethodCall records one MockBusClient.Call
type MethodCall struct {
	Object bus.Object
	Method string
	Args   []any
}

type mockSub struct {
	ch     chan bus.Signal
	closed bool
}

// MockBusClient is an in-memory bus.Client.
// Thread-safe for concurrent use from multiple goroutines.
type MockBusClient struct {
	mu     sync.Mutex
	props  map[string]any
	subs   []*mockSub
	sets   []SetCall
	calls  []MethodCall
	closed bool

	setErrs  []error
	callErrs []error

	// GetErr, when set, is returned by Get
	GetErr error
	// SubscribeErr, when set, is returned by Subscribe
	SubscribeErr error
}

// NewMockBusClient creates a client whose Get serves props
func NewMockBusClient(props map[string]any) *MockBusClient {
	copied := make(map[string]any, len(props))
	for k, v := range props {
		copied[k] = v
	}
	return &MockBusClient{props: copied}
}

// Subscribe implements bus.Client
func (c *MockBusClient) Subscribe(_ context.Context, _ bus.Object) (*bus.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	sub := &mockSub{ch: make(chan bus.Signal, 16)}
	c.subs = append(c.subs, sub)

	return bus.NewSubscription(sub.ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closeSub(sub)
	}), nil
}

func (c *MockBusClient) closeSub(sub *mockSub) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Get implements bus.Client
func (c *MockBusClient) Get(_ context.Context, _ bus.Object, property string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	return c.props[property], nil
}

// FailSets makes the next len(errs) Set calls return errs in order
func (c *MockBusClient) FailSets(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setErrs = append(c.setErrs, errs...)
}

// FailCalls makes the next len(errs) Call calls return errs in order
func (c *MockBusClient) FailCalls(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callErrs = append(c.callErrs, errs...)
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

// Set implements bus.Client. It records the call and updates the property
// without emitting a change signal.
func (c *MockBusClient) Set(_ context.Context, obj bus.Object, property string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = append(c.sets, SetCall{Object: obj, Property: property, Value: value})
	if err := popErr(&c.setErrs); err != nil {
		return err
	}
	c.props[property] = value
	return nil
}

// Call implements bus.Client
func (c *MockBusClient) Call(_ context.Context, obj bus.Object, method string, args ...any) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, MethodCall{Object: obj, Method: method, Args: args})
	if err := popErr(&c.callErrs); err != nil {
		return nil, err
	}
	return nil, nil
}

// Close implements bus.Client
func (c *MockBusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, sub := range c.subs {
		c.closeSub(sub)
	}
	return nil
}

// Emit delivers a property change to every open subscription
func (c *MockBusClient) Emit(changed map[string]any) {
	c.send(bus.Signal{Changed: changed})
}

// Interrupt reports a dropped connection without ending subscriptions
func (c *MockBusClient) Interrupt() {
	c.send(bus.Signal{Err: errors.New("mock interruption")})
}

// Drop simulates losing the connection for good: subscriptions get an
// error signal and are closed.
func (c *MockBusClient) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- bus.Signal{Err: errors.New("mock connection lost")}:
		default:
		}
		c.closeSub(sub)
	}
}

func (c *MockBusClient) send(sig bus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if sub.closed {
			continue
		}
		sub.ch <- sig
	}
}

// Subscribers returns the number of open subscriptions
func (c *MockBusClient) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, sub := range c.subs {
		if !sub.closed {
			n++
		}
	}
	return n
}

// Sets returns the recorded Set calls
func (c *MockBusClient) Sets() []SetCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SetCall(nil), c.sets...)
}

// Calls returns the recorded method calls
func (c *MockBusClient) Calls() []MethodCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MethodCall(nil), c.calls...)
}

// Closed reports whether Close was called
func (c *MockBusClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DialResult is one scripted outcome of MockDialer.Dial
type DialResult struct {
	Client *MockBusClient
	Err    error
}

// MockDialer returns scripted results in order; the last one repeats
type MockDialer struct {
	mu      sync.Mutex
	results []DialResult
	dials   int
}

// NewMockDialer creates a dialer that plays results in order
func NewMockDialer(results ...DialResult) *MockDialer {
	return &MockDialer{results: results}
}

// Dial implements bus.Dialer
func (d *MockDialer) Dial(ctx context.Context) (bus.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.results) == 0 {
		return nil, ErrMockDial
	}
	i := d.dials
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	d.dials++

	r := d.results[i]
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Client, nil
}

// Dials returns how many times Dial was called
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
