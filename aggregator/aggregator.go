package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/metric"
	"github.com/c360/swaybar/pkg/worker"
	"github.com/c360/swaybar/protocol"
)

// Config tunes the aggregator's queues
type Config struct {
	// UpdateBuffer is the capacity of the shared update channel
	UpdateBuffer int
	// ClickQueue is the per-slot capacity of pending click handlers
	ClickQueue int
	// HandlerStopTimeout bounds how long shutdown waits for running handlers
	HandlerStopTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// DefaultConfig returns the aggregator defaults
func DefaultConfig() Config {
	return Config{
		UpdateBuffer:       64,
		ClickQueue:         8,
		HandlerStopTimeout: time.Second,
	}
}

// Aggregator owns the slot array. All slot state is read and written only on
// the goroutine running Run; modules reach it through their Sink and the
// writer through the frame and ack channels.
type Aggregator struct {
	slots []Slot
	specs []SlotSpec
	pools []*worker.Pool[protocol.ClickEvent]
	cfg   Config

	updates chan UpdateMessage
	clicks  chan protocol.ClickEvent
	frames  chan []protocol.Block
	written chan error

	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates an aggregator with one slot per spec, in order
func New(specs []SlotSpec, cfg Config) (*Aggregator, error) {
	if len(specs) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Aggregator", "New", "slot setup")
	}

	defaults := DefaultConfig()
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = defaults.UpdateBuffer
	}
	if cfg.ClickQueue <= 0 {
		cfg.ClickQueue = defaults.ClickQueue
	}
	if cfg.HandlerStopTimeout <= 0 {
		cfg.HandlerStopTimeout = defaults.HandlerStopTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "aggregator")

	a := &Aggregator{
		slots:   make([]Slot, len(specs)),
		specs:   append([]SlotSpec(nil), specs...),
		pools:   make([]*worker.Pool[protocol.ClickEvent], len(specs)),
		cfg:     cfg,
		updates: make(chan UpdateMessage, cfg.UpdateBuffer),
		clicks:  make(chan protocol.ClickEvent, cfg.ClickQueue),
		frames:  make(chan []protocol.Block, 1),
		written: make(chan error, 1),
		logger:  logger,
		metrics: cfg.Metrics,
	}

	for i, spec := range specs {
		if spec.Name == "" {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: slot %d has no name", errors.ErrInvalidConfig, i),
				"Aggregator", "New", "slot setup")
		}
		a.slots[i] = Slot{
			Index:    i,
			Name:     spec.Name,
			Instance: spec.Instance,
			Block:    protocol.Block{}.WithIdentity(spec.Name, spec.Instance),
		}
		if spec.OnClick != nil {
			a.pools[i] = a.newPool(spec)
		}
	}

	return a, nil
}

func (a *Aggregator) newPool(spec SlotSpec) *worker.Pool[protocol.ClickEvent] {
	handler := spec.OnClick
	logger := a.logger.With("module", spec.Name, "instance", spec.Instance)
	return worker.NewPool(1, a.cfg.ClickQueue,
		func(ctx context.Context, ev protocol.ClickEvent) error {
			return handler(ctx, ev)
		},
		worker.WithMetrics[protocol.ClickEvent](a.metrics, protocol.Key(spec.Name, spec.Instance)),
		worker.WithErrorHandler(func(ev protocol.ClickEvent, err error) {
			logger.Warn("Click handler failed", "button", ev.Button, "error", err)
		}),
	)
}

// Sink returns the emitter for slot index. It panics on an index that was not
// configured, which is a programming error.
func (a *Aggregator) Sink(index int) Sink {
	if index < 0 || index >= len(a.slots) {
		panic(fmt.Sprintf("aggregator: sink for unknown slot %d", index))
	}
	return Sink{slot: index, updates: a.updates}
}

// Len returns the number of slots
func (a *Aggregator) Len() int {
	return len(a.slots)
}

// Clicks is where the protocol reader delivers decoded events
func (a *Aggregator) Clicks() chan<- protocol.ClickEvent {
	return a.clicks
}

// Frames is the snapshot stream consumed by the protocol writer. It is
// closed when Run returns.
func (a *Aggregator) Frames() <-chan []protocol.Block {
	return a.frames
}

// Written is where the protocol writer acknowledges each frame
func (a *Aggregator) Written() chan<- error {
	return a.written
}

// Run applies updates and dispatches clicks until ctx is cancelled, then
// flushes any pending snapshot and returns. A write failure reported by the
// writer ends Run with that error.
func (a *Aggregator) Run(ctx context.Context) error {
	defer close(a.frames)

	a.startPools(ctx)
	defer a.stopPools()

	inFlight := false
	pending := false

	for {
		select {
		case <-ctx.Done():
			return a.flush(inFlight, pending)

		case msg := <-a.updates:
			if !a.apply(msg) {
				continue
			}
			if inFlight {
				if pending {
					a.metrics.RecordCoalesced()
				}
				pending = true
				continue
			}
			a.send()
			inFlight = true

		case err := <-a.written:
			inFlight = false
			if err != nil {
				return err
			}
			if pending {
				pending = false
				a.send()
				inFlight = true
			}

		case ev := <-a.clicks:
			a.dispatch(ev)
		}
	}
}

// apply stores msg in its slot and reports whether anything changed
func (a *Aggregator) apply(msg UpdateMessage) bool {
	if msg.Slot < 0 || msg.Slot >= len(a.slots) {
		a.logger.Warn("Dropping update for unknown slot", "slot", msg.Slot)
		return false
	}
	slot := &a.slots[msg.Slot]
	slot.Block = msg.Block.WithIdentity(slot.Name, slot.Instance)
	slot.Generation++
	a.metrics.RecordUpdate(slot.Key(), slot.Generation)
	return true
}

// snapshot copies every slot's block in configured order
func (a *Aggregator) snapshot() []protocol.Block {
	blocks := make([]protocol.Block, len(a.slots))
	for i := range a.slots {
		blocks[i] = a.slots[i].Block
	}
	return blocks
}

// send hands a fresh snapshot to the writer. At most one frame is ever in
// flight, so the buffered channel always has room.
func (a *Aggregator) send() {
	a.frames <- a.snapshot()
}

func (a *Aggregator) flush(inFlight, pending bool) error {
	// Take whatever modules managed to queue before they were stopped
	for drained := false; !drained; {
		select {
		case msg := <-a.updates:
			if a.apply(msg) {
				pending = true
			}
		default:
			drained = true
		}
	}

	if inFlight {
		if err := <-a.written; err != nil {
			return err
		}
	}
	if !pending {
		return nil
	}

	a.send()
	if err := <-a.written; err != nil {
		return err
	}
	a.logger.Debug("Flushed final snapshot")
	return nil
}

// dispatch routes ev to the first slot whose name and instance match
func (a *Aggregator) dispatch(ev protocol.ClickEvent) {
	for i := range a.slots {
		if !ev.Matches(a.slots[i].Name, a.slots[i].Instance) {
			continue
		}
		pool := a.pools[i]
		if pool == nil {
			return
		}
		key := a.slots[i].Key()
		if err := pool.Submit(ev); err != nil {
			stats := pool.Stats()
			a.logger.Warn("Dropping click event", "module", key, "error", err,
				"queue_depth", stats.QueueDepth, "dropped", stats.Dropped)
		}
		a.metrics.RecordHandlerQueue(key, pool.Stats().QueueDepth)
		return
	}
	a.metrics.RecordUnmatchedClick()
}

func (a *Aggregator) startPools(ctx context.Context) {
	for i, pool := range a.pools {
		if pool == nil {
			continue
		}
		if err := pool.Start(ctx); err != nil {
			a.logger.Error("Failed to start click handler pool", "module", a.slots[i].Key(), "error", err)
		}
	}
}

// stopPools stops every pool; one that never started returns at once
func (a *Aggregator) stopPools() {
	for i, pool := range a.pools {
		if pool == nil {
			continue
		}
		if err := pool.Stop(a.cfg.HandlerStopTimeout); err != nil {
			a.logger.Warn("Click handler pool did not stop in time", "module", a.slots[i].Key(), "error", err)
		}
		stats := pool.Stats()
		a.logger.Debug("Click handler pool stopped", "module", a.slots[i].Key(),
			"processed", stats.Processed, "failed", stats.Failed, "dropped", stats.Dropped)
	}
}
