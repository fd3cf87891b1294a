package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/health"
	"github.com/c360/swaybar/metric"
	"github.com/c360/swaybar/natsclient"
)

// Subject suffixes for the request side of the NATS backend
const (
	getSuffix  = ".get"
	setSuffix  = ".set"
	callSuffix = ".call"
)

// propertyMessage is the JSON body exchanged on NATS subjects
type propertyMessage struct {
	Interface string         `json:"interface,omitempty"`
	Property  string         `json:"property,omitempty"`
	Method    string         `json:"method,omitempty"`
	Value     any            `json:"value,omitempty"`
	Args      []any          `json:"args,omitempty"`
	Changed   map[string]any `json:"changed,omitempty"`
}

// Subject maps an object path onto a NATS subject: "/org/bluez/hci0"
// becomes "org.bluez.hci0".
func Subject(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", ".")
}

// NATS is a Client that carries property changes over NATS subjects.
// Publishers send propertyMessage bodies on Subject(path); Get and Call are
// request/reply on the ".get" and ".call" subjects and Set is a publish on
// ".set".
type NATS struct {
	client *natsclient.Client
	logger *slog.Logger
	detach func()

	mu   sync.Mutex
	subs map[*natsSubscriber]struct{}
}

type natsSubscriber struct {
	obj    Object
	out    chan Signal
	closed bool
}

// NATSConfig holds the connection settings of the nats backend. Zero
// durations and a zero MaxReconnects keep the client defaults.
type NATSConfig struct {
	URL      string
	Name     string
	Token    string
	User     string
	Password string

	Timeout       time.Duration
	DrainTimeout  time.Duration
	ReconnectWait time.Duration
	PingInterval  time.Duration
	// MaxReconnects of -1 reconnects forever
	MaxReconnects int
}

// NATSDialer creates a NATS backend per Dial
type NATSDialer struct {
	Config  NATSConfig
	Logger  *slog.Logger
	Metrics *metric.Metrics
	// Health, when set, gets a live check of the connection under
	// "nats:"+Label for as long as the client is open
	Health *health.Monitor
	// Label tags the bus connection gauge, usually the module key
	Label string
}

// options turns the configuration into client options
func (d NATSDialer) options() []natsclient.ClientOption {
	c := d.Config
	opts := []natsclient.ClientOption{
		natsclient.WithName(c.Name),
		natsclient.WithMetrics(d.Metrics, d.Label),
	}
	if c.Token != "" {
		opts = append(opts, natsclient.WithToken(c.Token))
	}
	if c.User != "" {
		opts = append(opts, natsclient.WithCredentials(c.User, c.Password))
	}
	if c.Timeout > 0 {
		opts = append(opts, natsclient.WithTimeout(c.Timeout))
	}
	if c.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(c.DrainTimeout))
	}
	if c.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(c.ReconnectWait))
	}
	if c.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(c.PingInterval))
	}
	if c.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(c.MaxReconnects))
	}
	return opts
}

// connectionHealth maps the client's state onto a health state
func connectionHealth(client *natsclient.Client) (health.State, string) {
	if client.IsHealthy() {
		rtt, err := client.RTT()
		if err != nil {
			return health.StateDegraded, fmt.Sprintf("connected, rtt unavailable: %v", err)
		}
		return health.StateHealthy, fmt.Sprintf("connected, rtt %v", rtt.Round(time.Microsecond))
	}
	switch status := client.Status(); status {
	case natsclient.StatusConnecting, natsclient.StatusReconnecting:
		return health.StateDegraded, status.String()
	default:
		return health.StateUnhealthy, status.String()
	}
}

// Dial implements Dialer
func (d NATSDialer) Dial(ctx context.Context) (Client, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &NATS{
		logger: logger.With("component", "nats-bus"),
		subs:   make(map[*natsSubscriber]struct{}),
	}

	opts := append(d.options(),
		natsclient.WithLogger(logger),
		natsclient.WithDisconnectCallback(func(err error) {
			n.broadcast(Signal{Err: stderrors.Join(errors.ErrConnectionLost, err)}, false)
		}),
		natsclient.WithReconnectCallback(func() {
			n.broadcast(Signal{}, false)
		}),
		natsclient.WithClosedCallback(func() {
			n.broadcast(Signal{Err: errors.ErrConnectionLost}, true)
		}),
	)
	client, err := natsclient.NewClient(d.Config.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	n.client = client
	n.detach = d.Health.Attach("nats:"+d.Label, func() (health.State, string) {
		return connectionHealth(client)
	})
	return n, nil
}

// Subscribe implements Client
func (n *NATS) Subscribe(ctx context.Context, obj Object) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &natsSubscriber{obj: obj, out: make(chan Signal, 16)}

	unsubscribe, err := n.client.Subscribe(subCtx, Subject(obj.Path), func(_ context.Context, data []byte) {
		sig, ok := decodePropertyMessage(data, obj)
		if !ok {
			n.logger.Debug("Ignoring undecodable bus message", "subject", Subject(obj.Path))
			return
		}
		n.deliver(sub, sig)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-subCtx.Done()
		if err := unsubscribe(); err != nil {
			n.logger.Debug("Unsubscribe failed", "error", err)
		}
		n.mu.Lock()
		delete(n.subs, sub)
		if !sub.closed {
			sub.closed = true
			close(sub.out)
		}
		n.mu.Unlock()
	}()

	return NewSubscription(sub.out, cancel), nil
}

// deliver hands sig to one subscriber without blocking the NATS callback
// goroutine for longer than the subscriber's buffer allows.
func (n *NATS) deliver(sub *natsSubscriber, sig Signal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.out <- sig:
	default:
		n.logger.Warn("Bus subscriber is slow, dropping signal", "path", sub.obj.Path)
	}
}

func (n *NATS) broadcast(sig Signal, final bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		if sub.closed {
			continue
		}
		s := sig
		s.Path = sub.obj.Path
		s.Interface = sub.obj.Interface
		select {
		case sub.out <- s:
		default:
		}
		if final {
			sub.closed = true
			close(sub.out)
		}
	}
}

func decodePropertyMessage(data []byte, obj Object) (Signal, bool) {
	var msg propertyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Signal{}, false
	}
	if obj.Interface != "" && msg.Interface != "" && msg.Interface != obj.Interface {
		return Signal{}, false
	}
	changed := msg.Changed
	if changed == nil && msg.Property != "" {
		changed = map[string]any{msg.Property: msg.Value}
	}
	if len(changed) == 0 {
		return Signal{}, false
	}
	return Signal{Path: obj.Path, Interface: obj.Interface, Changed: changed}, true
}

// Get implements Client. Without a responder on the ".get" subject it
// returns ErrNotSupported so callers can wait for the first change instead.
func (n *NATS) Get(ctx context.Context, obj Object, property string) (any, error) {
	req, err := json.Marshal(propertyMessage{Interface: obj.Interface, Property: property})
	if err != nil {
		return nil, errors.WrapInvalid(err, "NATS", "Get", "request encoding")
	}
	reply, err := n.client.Request(ctx, Subject(obj.Path)+getSuffix, req)
	if err != nil {
		if stderrors.Is(err, nats.ErrNoResponders) {
			return nil, ErrNotSupported
		}
		return nil, err
	}
	var value any
	if err := json.Unmarshal(reply, &value); err != nil {
		return nil, errors.WrapInvalid(stderrors.Join(errors.ErrParsingFailed, err), "NATS", "Get", "reply decoding")
	}
	return value, nil
}

// Set implements Client
func (n *NATS) Set(ctx context.Context, obj Object, property string, value any) error {
	body, err := json.Marshal(propertyMessage{Interface: obj.Interface, Property: property, Value: value})
	if err != nil {
		return errors.WrapInvalid(err, "NATS", "Set", "message encoding")
	}
	return n.client.Publish(ctx, Subject(obj.Path)+setSuffix, body)
}

// Call implements Client. The reply, if any, is decoded as a JSON array.
func (n *NATS) Call(ctx context.Context, obj Object, method string, args ...any) ([]any, error) {
	body, err := json.Marshal(propertyMessage{Interface: obj.Interface, Method: method, Args: args})
	if err != nil {
		return nil, errors.WrapInvalid(err, "NATS", "Call", "message encoding")
	}
	reply, err := n.client.Request(ctx, Subject(obj.Path)+callSuffix, body)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, nil
	}
	var out []any
	if err := json.Unmarshal(reply, &out); err != nil {
		return []any{string(reply)}, nil
	}
	return out, nil
}

// Close implements Client
func (n *NATS) Close() error {
	if n.detach != nil {
		n.detach()
	}
	return n.client.Close(context.Background())
}
