package metric

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/swaybar/errors"
)

// Server represents the metrics HTTP server
type Server struct {
	port     int
	path     string
	server   *http.Server
	listener net.Listener
	registry *MetricsRegistry
	logger   *slog.Logger
	extra    map[string]http.Handler
	mu       sync.Mutex // protects server, listener and extra
}

// NewServer creates a new metrics server with the provided registry.
// Port 0 picks a free port, which Address reports once started.
func NewServer(port int, path string, registry *MetricsRegistry, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		logger:   logger,
	}
}

// Handle adds a route served next to the metrics. It must be called before
// Start.
func (s *Server) Handle(path string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extra == nil {
		s.extra = make(map[string]http.Handler)
	}
	s.extra[path] = h
}

// Start binds the listener and serves metrics in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "cannot start server that is already running")
	}

	if s.registry == nil {
		return errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Server", "Start", "metrics registry not provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	for path, h := range s.extra {
		mux.Handle(path, h)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("failed to listen on port %d", s.port))
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("Metrics server stopped", "error", err)
		}
	}(s.server, listener)

	return nil
}

// Stop shuts the metrics server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "failed to stop HTTP server")
	}
	return nil
}

// Address returns the metrics URL, or an empty string when not running
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return fmt.Sprintf("http://%s%s", s.listener.Addr().String(), s.path)
}
