// Package natsclient manages the NATS connection used by the NATS bus backend.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client closed")
)

// Client wraps a single NATS connection with status tracking and
// connection-event callbacks.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	subs []*nats.Subscription

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication - cleared on close
	username string
	password string
	token    string

	clientName string

	// Metrics
	metrics     *metric.Metrics
	metricLabel string

	// Callbacks
	onDisconnect func(error)
	onReconnect  func()
	onClosed     func()

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  2 * time.Second,
		clientName:    "swaybar-" + uuid.NewString(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient", "url", url)
	c.status.Store(StatusDisconnected)

	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string {
	return m.url
}

// Name returns the client name announced to the server
func (m *Client) Name() string {
	return m.clientName
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
	m.metrics.RecordBusStatus(m.metricLabel, status == StatusConnected)
}

// IsHealthy returns true if the connection is up
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

func (m *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(m.clientName),
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}

	if m.username != "" && m.password != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}

	return opts
}

// Connect establishes the connection, giving up when ctx is done
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.setStatus(StatusConnecting)
	m.logger.Debug("Connecting to NATS")

	opts := m.buildConnectionOptions()

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(stderrors.Join(errors.ErrNoConnection, err), "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	m.setStatus(StatusConnected)
	m.logger.Info("Connected to NATS")
	return nil
}

// Subscribe registers handler for subject. The returned function removes
// the subscription.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	sub, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		return nil, errors.WrapTransient(stderrors.Join(errors.ErrSubscriptionFailed, err), "Client", "Subscribe", "subscribe")
	}
	m.subs = append(m.subs, sub)

	unsubscribe := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s == sub {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		if !sub.IsValid() {
			return nil
		}
		return sub.Unsubscribe()
	}
	return unsubscribe, nil
}

// Publish publishes a message to a NATS subject
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := m.connection()
	if err != nil {
		return err
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish")
	}
	return nil
}

// Request sends data on subject and waits for a single reply
func (m *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn, err := m.connection()
	if err != nil {
		return nil, err
	}
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if stderrors.Is(err, nats.ErrNoResponders) {
			return nil, errors.WrapInvalid(err, "Client", "Request", "request")
		}
		return nil, errors.WrapTransient(err, "Client", "Request", "request")
	}
	return msg.Data, nil
}

func (m *Client) connection() (*nats.Conn, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// RTT returns the round-trip time to the NATS server
func (m *Client) RTT() (time.Duration, error) {
	conn, err := m.connection()
	if err != nil {
		return 0, err
	}
	return conn.RTT()
}

// Close unsubscribes everything and drains the connection
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	m.subs = nil

	if m.conn != nil {
		drainTimeout := m.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		conn := m.conn
		go func() {
			drainDone <- conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout), "Client", "Close", "drain"))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain"))
		}

		conn.Close()
		m.conn = nil
	}

	m.username = ""
	m.password = ""
	m.token = ""
	m.setStatus(StatusClosed)

	return stderrors.Join(errs...)
}

// Event handlers for NATS connection
func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("NATS disconnected", "error", err)

	if m.onDisconnect != nil {
		go m.onDisconnect(err)
	}
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.logger.Info("NATS reconnected")

	if m.onReconnect != nil {
		go m.onReconnect()
	}
}

func (m *Client) handleClosed(_ *nats.Conn) {
	if m.Status() != StatusClosed {
		m.setStatus(StatusDisconnected)
	}
	if m.onClosed != nil {
		go m.onClosed()
	}
}

func (m *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	m.logger.Error("NATS error", "subject", subject, "error", err)
}
