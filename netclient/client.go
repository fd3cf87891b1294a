package netclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/c360/swaybar/errors"
)

// DefaultTimeout bounds one request when neither the request nor the client
// sets a timeout
const DefaultTimeout = 5 * time.Second

const defaultMaxBody = 4 << 20

// Request describes one HTTP exchange
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Timeout bounds this attempt only. Zero uses the client default.
	Timeout time.Duration
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs bounded HTTP requests for poll modules
type Client struct {
	http    *http.Client
	timeout time.Duration
	maxBody int64
	logger  *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the default per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBody caps how many response bytes are read
func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a network client
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: DefaultTimeout,
		maxBody: defaultMaxBody,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "netclient")
	return c
}

// Do sends req and reads the whole response. Timeouts, transport failures
// and non-2xx statuses are transient; a malformed request is invalid.
// Cancelling ctx aborts the request in flight.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Do", "request build")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = stderrors.Join(errors.ErrConnectionTimeout, err)
		}
		return nil, errors.WrapTransient(err, "Client", "Do", method+" "+req.URL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Do", "body read")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("Unexpected response status", "url", req.URL, "status", resp.StatusCode)
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %d", errors.ErrUnexpectedStatus, resp.StatusCode),
			"Client", "Do", method+" "+req.URL)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// FetchJSON performs req and decodes the JSON body into v
func (c *Client) FetchJSON(ctx context.Context, req Request, v any) error {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if _, ok := req.Headers["Accept"]; !ok {
		req.Headers["Accept"] = "application/json"
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return errors.WrapInvalid(stderrors.Join(errors.ErrParsingFailed, err), "Client", "FetchJSON", "body decode")
	}
	return nil
}

// ExtractField walks a decoded JSON document along a dot-separated path.
// Numeric segments index into arrays. An empty path returns doc itself.
func ExtractField(doc any, path string) (any, error) {
	if path == "" {
		return doc, nil
	}
	current := doc
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("%w: field %q not found", errors.ErrInvalidData, part)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: index %q out of range", errors.ErrInvalidData, part)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("%w: cannot descend into %T at %q", errors.ErrInvalidData, current, part)
		}
	}
	return current, nil
}
