package module

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/swaybar/bus"
	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/health"
	"github.com/c360/swaybar/metric"
	"github.com/c360/swaybar/netclient"
	"github.com/c360/swaybar/pkg/retry"
	"github.com/c360/swaybar/protocol"
)

// Sink receives a module's blocks. The aggregator hands each module a sink
// bound to its slot.
type Sink interface {
	Emit(ctx context.Context, block protocol.Block) error
}

// Module is one producer of blocks. The set of implementations is closed:
// *Clock, *Bus, *Poll and *Static.
type Module interface {
	Name() string
	Instance() string
	// Run produces blocks until ctx is cancelled. It returns early only
	// when the module has failed for good, after emitting its error block.
	Run(ctx context.Context, sink Sink) error
	// Click handles an interaction event. It is called from the slot's
	// handler goroutine, never from Run's.
	Click(ctx context.Context, event protocol.ClickEvent) error

	sealed()
}

// Deps are the collaborators shared by all modules
type Deps struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
	Health  *health.Monitor
	Backoff retry.Config
	HTTP    *netclient.Client
	// NATS is used by bus modules with the nats backend
	NATS bus.NATSConfig
	// Dialer overrides backend selection for bus modules
	Dialer bus.Dialer
	// Sleep waits between retries; tests replace it to observe delays
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is the time source of clocks and range polls
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Backoff == (retry.Config{}) {
		d.Backoff = retry.DefaultConfig()
	}
	if d.HTTP == nil {
		d.HTTP = netclient.NewClient(netclient.WithLogger(d.Logger))
	}
	if d.Sleep == nil {
		d.Sleep = retry.Sleep
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// New builds the module described by spec
func New(spec Spec, deps Deps) (Module, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Module", "New", "spec validation")
	}
	deps = deps.withDefaults()

	switch spec.Kind {
	case KindClock:
		return newClock(spec, deps)
	case KindBus:
		return newBus(spec, deps)
	case KindPoll:
		return newPoll(spec, deps)
	case KindStatic:
		return newStatic(spec, deps)
	}
	// Validate rejects every other kind
	panic(fmt.Sprintf("module: unhandled kind %q", spec.Kind))
}

// KindOf reports which variant m is
func KindOf(m Module) Kind {
	switch m.(type) {
	case *Clock:
		return KindClock
	case *Bus:
		return KindBus
	case *Poll:
		return KindPoll
	case *Static:
		return KindStatic
	default:
		return ""
	}
}

// base carries what every variant shares: identity, the block style and the
// error policy.
type base struct {
	name     string
	instance string
	// key labels the module in metrics and health reports
	key      string
	style    styler
	logger   *slog.Logger
	metrics  *metric.Metrics
	health   *health.Monitor
	backoff  retry.Config
	sleep    func(ctx context.Context, d time.Duration) error
}

func newBase(spec Spec, deps Deps) (base, error) {
	st, err := newStyler(spec.Name, spec.Style)
	if err != nil {
		return base{}, err
	}
	key := protocol.Key(spec.Name, spec.Instance)
	deps.Health.Register(key)
	return base{
		name:     spec.Name,
		instance: spec.Instance,
		key:      key,
		style:    st,
		logger:   deps.Logger.With("module", key, "kind", string(spec.Kind)),
		metrics:  deps.Metrics,
		health:   deps.Health,
		backoff:  deps.Backoff,
		sleep:    deps.Sleep,
	}, nil
}

func (b *base) Name() string     { return b.name }
func (b *base) Instance() string { return b.instance }
func (b *base) sealed()          {}

// emitText sends a normal block styled for the module. view feeds the short
// format and value the threshold colours; either may be nil.
func (b *base) emitText(ctx context.Context, sink Sink, text string, view, value any) error {
	return sink.Emit(ctx, b.style.block(b.logger, text, view, value))
}

// emitError sends an urgent block describing err
func (b *base) emitError(ctx context.Context, sink Sink, prefix string, err error) error {
	text := b.name + ": " + prefix
	if err != nil {
		text += ": " + err.Error()
	}
	return sink.Emit(ctx, protocol.ErrorBlock(text))
}

// policy applies the retry rules to one run loop. Transient failures back
// off silently until the delay reaches its cap; from then on an urgent
// retrying block is shown. Running out of attempts, or a fatal error, stops
// the module.
type policy struct {
	*base
	bo *retry.Backoff
}

func (b *base) newPolicy() *policy {
	return &policy{base: b, bo: retry.NewBackoff(b.backoff)}
}

// succeeded resets the backoff after a good attempt
func (p *policy) succeeded() {
	if p.bo.Failures() > 0 {
		p.logger.Info("Module recovered", "failures", p.bo.Failures())
	}
	p.bo.Reset()
	p.metrics.RecordModuleState(p.key, metric.StateOK)
	p.health.Healthy(p.key)
}

// failed records err and waits out the backoff delay. It returns a non-nil
// error when the module must stop: ctx was cancelled, or the failure is
// fatal, in which case the permanent error block has been emitted.
func (p *policy) failed(ctx context.Context, sink Sink, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.metrics.RecordModuleError(p.key, errors.Classify(err).String())

	if isPermanent(err) {
		return p.fatal(ctx, sink, err)
	}

	delay, ok := p.bo.Next()
	if !ok {
		return p.fatal(ctx, sink, fmt.Errorf("%w after %d attempts: %w", errors.ErrMaxRetriesExceeded, p.bo.Failures(), err))
	}

	p.logger.Warn("Module attempt failed", "error", err, "failures", p.bo.Failures(), "retry_in", delay)
	if p.bo.Saturated() {
		p.metrics.RecordModuleState(p.key, metric.StateRetrying)
		p.health.Degraded(p.key, p.bo.Failures(), err)
		if emitErr := p.emitError(ctx, sink, "retrying", err); emitErr != nil {
			return emitErr
		}
	}

	return p.sleep(ctx, delay)
}

// fatal emits the permanent error block and returns the error Run should
// end with.
func (p *policy) fatal(ctx context.Context, sink Sink, err error) error {
	p.metrics.RecordModuleState(p.key, metric.StateFailed)
	p.health.Unhealthy(p.key, err)
	p.logger.Error("Module stopped", "error", err)
	if emitErr := p.emitError(ctx, sink, "error", err); emitErr != nil {
		return emitErr
	}
	return errors.WrapFatal(err, "Module", "Run", p.key)
}

// isPermanent reports errors no retry can fix
func isPermanent(err error) bool {
	return errors.IsFatal(err) || stderrors.Is(err, errors.ErrInvalidConfig)
}

// poke does a non-blocking send on a wake-up channel
func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
