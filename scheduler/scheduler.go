package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/swaybar/aggregator"
	"github.com/c360/swaybar/config"
	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/metric"
	"github.com/c360/swaybar/module"
	"github.com/c360/swaybar/protocol"
)

// ErrShutdownTimeout is returned when the final flush does not complete
// within Config.ShutdownTimeout
var ErrShutdownTimeout = stderrors.New("shutdown timed out")

// DefaultShutdownTimeout bounds shutdown when Config leaves it unset
const DefaultShutdownTimeout = 5 * time.Second

// Config holds the runtime settings of one bar
type Config struct {
	Header          protocol.Header
	MinInterval     time.Duration
	UpdateBuffer    int
	ClickQueue      int
	ShutdownTimeout time.Duration
}

// ConfigFrom extracts the scheduler settings from a loaded configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Header:          protocol.Header{Version: 1, ClickEvents: cfg.Protocol.ClickEvents},
		MinInterval:     cfg.Aggregator.MinInterval,
		UpdateBuffer:    cfg.Aggregator.UpdateBuffer,
		ClickQueue:      cfg.Aggregator.ClickQueue,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler runs one bar: the protocol writer and reader, the aggregator and
// every module. It is built once per run and holds no global state.
type Scheduler struct {
	cfg     Config
	modules []module.Module
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates a scheduler for modules, in bar order, reading click events
// from in and writing the status stream to out.
func New(cfg Config, modules []module.Module, in io.Reader, out io.Writer, opts ...Option) (*Scheduler, error) {
	if len(modules) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scheduler", "New", "module check")
	}
	if in == nil || out == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: input and output are required", errors.ErrInvalidConfig),
			"Scheduler", "New", "stream check")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Header.Version == 0 {
		cfg.Header = protocol.DefaultHeader()
	}

	s := &Scheduler{
		cfg:     cfg,
		modules: modules,
		in:      in,
		out:     out,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// Run drives the bar until ctx is cancelled, the input ends or the output
// fails. Cancellation and end of input are clean shutdowns and return nil
// once the last pending snapshot has been written. An output failure is
// returned as a fatal error. If the shutdown does not finish within
// ShutdownTimeout, Run returns ErrShutdownTimeout.
//
// A module that stops on its own leaves its last block on the bar and does
// not end the run.
func (s *Scheduler) Run(ctx context.Context) error {
	agg, err := aggregator.New(s.slotSpecs(), aggregator.Config{
		UpdateBuffer: s.cfg.UpdateBuffer,
		ClickQueue:   s.cfg.ClickQueue,
		Logger:       s.logger,
		Metrics:      s.metrics,
	})
	if err != nil {
		return err
	}

	writer := protocol.NewWriter(s.out, protocol.WriterConfig{
		Header:      s.cfg.Header,
		MinInterval: s.cfg.MinInterval,
		Logger:      s.logger,
		Metrics:     s.metrics,
	})
	reader := protocol.NewReader(s.in, protocol.ReaderConfig{Logger: s.logger, Metrics: s.metrics})

	if err := writer.WriteHeader(); err != nil {
		s.logger.Error("Output failed, shutting down", "error", err, "broken_pipe", errors.IsBrokenPipe(err))
		return err
	}

	// The aggregator and writer outlive the producers so the final
	// snapshot can still be flushed after the modules stop.
	aggCtx, aggCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer aggCancel()

	aggDone := make(chan error, 1)
	go func() { aggDone <- agg.Run(aggCtx) }()

	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run(aggCtx, agg.Frames(), agg.Written()) }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	for i, m := range s.modules {
		m := m
		sink := agg.Sink(i)
		g.Go(func() error {
			s.runModule(gctx, m, sink)
			return nil
		})
	}

	g.Go(func() error {
		err := reader.Run(gctx, agg.Clicks())
		if stderrors.Is(err, protocol.ErrInputClosed) {
			s.logger.Info("Input closed, shutting down")
			cancel()
		}
		return nil
	})

	s.logger.Info("Bar started", "modules", len(s.modules))

	var runErr error
	select {
	case <-gctx.Done():
	case runErr = <-aggDone:
		aggDone = nil
		s.logger.Error("Output failed, shutting down", "error", runErr, "broken_pipe", errors.IsBrokenPipe(runErr))
	}
	cancel()

	return s.shutdown(g, aggCancel, aggDone, writerDone, runErr)
}

// shutdown waits for the producers, then lets the aggregator flush and the
// writer drain, all within one ShutdownTimeout.
func (s *Scheduler) shutdown(g *errgroup.Group, aggCancel context.CancelFunc,
	aggDone, writerDone <-chan error, runErr error) error {
	deadline := time.NewTimer(s.cfg.ShutdownTimeout)
	defer deadline.Stop()

	timeout := func(stage string) error {
		s.logger.Error("Shutdown timed out", "stage", stage, "timeout", s.cfg.ShutdownTimeout)
		return errors.WrapFatal(ErrShutdownTimeout, "Scheduler", "Run", stage)
	}

	groupDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(groupDone)
	}()
	select {
	case <-groupDone:
	case <-deadline.C:
		return timeout("module stop")
	}

	aggCancel()
	if aggDone != nil {
		select {
		case err := <-aggDone:
			if runErr == nil {
				runErr = err
			}
		case <-deadline.C:
			return timeout("final flush")
		}
	}

	select {
	case err := <-writerDone:
		if runErr == nil {
			runErr = err
		}
	case <-deadline.C:
		return timeout("writer drain")
	}

	if runErr != nil {
		return runErr
	}
	s.logger.Info("Bar stopped")
	return nil
}

func (s *Scheduler) runModule(ctx context.Context, m module.Module, sink module.Sink) {
	logger := s.logger.With("module", m.Name(), "instance", m.Instance(), "kind", string(module.KindOf(m)))
	logger.Debug("Module starting")

	if err := m.Run(ctx, sink); err != nil {
		logger.Error("Module stopped with error", "error", err)
		return
	}
	logger.Debug("Module stopped")
}

func (s *Scheduler) slotSpecs() []aggregator.SlotSpec {
	specs := make([]aggregator.SlotSpec, len(s.modules))
	for i, m := range s.modules {
		m := m
		specs[i] = aggregator.SlotSpec{
			Name:     m.Name(),
			Instance: m.Instance(),
			OnClick:  m.Click,
		}
	}
	return specs
}

// BuildModules constructs one module per spec, in order
func BuildModules(specs []module.Spec, deps module.Deps) ([]module.Module, error) {
	modules := make([]module.Module, 0, len(specs))
	for i, spec := range specs {
		m, err := module.New(spec, deps)
		if err != nil {
			return nil, errors.Wrap(err, "Scheduler", "BuildModules", fmt.Sprintf("module %d (%s)", i, spec.Name))
		}
		modules = append(modules, m)
	}
	return modules, nil
}
