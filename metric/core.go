package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swaybar"

// Module states reported by the ModuleState gauge
const (
	StateOK       = 0
	StateRetrying = 1
	StateFailed   = 2
)

// Metrics contains all engine-level metrics
type Metrics struct {
	// Aggregator metrics
	UpdatesReceived  *prometheus.CounterVec
	UpdatesCoalesced prometheus.Counter
	SlotGeneration   *prometheus.GaugeVec

	// Protocol metrics
	FramesWritten   prometheus.Counter
	FrameWriteTime  prometheus.Histogram
	ClicksReceived  prometheus.Counter
	ClicksMalformed prometheus.Counter
	ClicksUnmatched prometheus.Counter

	// Click handler metrics
	HandlerSubmitted *prometheus.CounterVec
	HandlerDropped   *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	HandlerQueue     *prometheus.GaugeVec

	// Module metrics
	ModuleErrors  *prometheus.CounterVec
	ModuleState   *prometheus.GaugeVec
	FetchDuration *prometheus.HistogramVec
	BusConnected  *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		UpdatesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "updates_total",
				Help:      "Total number of block updates received per module",
			},
			[]string{"module"},
		),

		UpdatesCoalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "coalesced_updates_total",
				Help:      "Updates folded into a later frame while a write was in flight",
			},
		),

		SlotGeneration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "slot_generation",
				Help:      "Generation counter of each slot",
			},
			[]string{"module"},
		),

		FramesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "frames_written_total",
				Help:      "Total number of status line frames written",
			},
		),

		FrameWriteTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "frame_write_seconds",
				Help:      "Time spent writing one frame",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),

		ClicksReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "clicks_received_total",
				Help:      "Total number of click events decoded",
			},
		),

		ClicksMalformed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "clicks_malformed_total",
				Help:      "Total number of input lines that could not be decoded",
			},
		),

		ClicksUnmatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "clicks_unmatched_total",
				Help:      "Click events that matched no slot",
			},
		),

		HandlerSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "handler",
				Name:      "submitted_total",
				Help:      "Click events queued for a module handler",
			},
			[]string{"module"},
		),

		HandlerDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "handler",
				Name:      "dropped_total",
				Help:      "Click events dropped because the handler queue was full",
			},
			[]string{"module"},
		),

		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "handler",
				Name:      "duration_seconds",
				Help:      "Time spent in module click handlers",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"module", "status"},
		),

		HandlerQueue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "handler",
				Name:      "queue_depth",
				Help:      "Click events waiting in a module's handler queue",
			},
			[]string{"module"},
		),

		ModuleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Module errors by class",
			},
			[]string{"module", "class"},
		),

		ModuleState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "state",
				Help:      "Module state (0=ok, 1=retrying, 2=failed)",
			},
			[]string{"module"},
		),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of poll module fetches",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"module", "status"},
		),

		BusConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "connected",
				Help:      "Bus connection status per module (0=disconnected, 1=connected)",
			},
			[]string{"module"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.UpdatesReceived,
		c.UpdatesCoalesced,
		c.SlotGeneration,
		c.FramesWritten,
		c.FrameWriteTime,
		c.ClicksReceived,
		c.ClicksMalformed,
		c.ClicksUnmatched,
		c.HandlerSubmitted,
		c.HandlerDropped,
		c.HandlerDuration,
		c.HandlerQueue,
		c.ModuleErrors,
		c.ModuleState,
		c.FetchDuration,
		c.BusConnected,
	}
}

// The Record helpers below accept a nil receiver so components can run
// without a registry (tests, --validate).

// RecordUpdate records a block update applied to a slot
func (c *Metrics) RecordUpdate(module string, generation uint64) {
	if c == nil {
		return
	}
	c.UpdatesReceived.WithLabelValues(module).Inc()
	c.SlotGeneration.WithLabelValues(module).Set(float64(generation))
}

// RecordCoalesced records an update folded into a pending frame
func (c *Metrics) RecordCoalesced() {
	if c == nil {
		return
	}
	c.UpdatesCoalesced.Inc()
}

// RecordFrame records one frame written to the host
func (c *Metrics) RecordFrame(duration time.Duration) {
	if c == nil {
		return
	}
	c.FramesWritten.Inc()
	c.FrameWriteTime.Observe(duration.Seconds())
}

// RecordClick records a decoded click event
func (c *Metrics) RecordClick() {
	if c == nil {
		return
	}
	c.ClicksReceived.Inc()
}

// RecordMalformedClick records an input line that failed to decode
func (c *Metrics) RecordMalformedClick() {
	if c == nil {
		return
	}
	c.ClicksMalformed.Inc()
}

// RecordUnmatchedClick records a click event that matched no slot
func (c *Metrics) RecordUnmatchedClick() {
	if c == nil {
		return
	}
	c.ClicksUnmatched.Inc()
}

// RecordModuleError records a module error with its class
func (c *Metrics) RecordModuleError(module, class string) {
	if c == nil {
		return
	}
	c.ModuleErrors.WithLabelValues(module, class).Inc()
}

// RecordModuleState records the module state (StateOK, StateRetrying, StateFailed)
func (c *Metrics) RecordModuleState(module string, state int) {
	if c == nil {
		return
	}
	c.ModuleState.WithLabelValues(module).Set(float64(state))
}

// RecordFetch records the duration of one poll fetch
func (c *Metrics) RecordFetch(module string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.FetchDuration.WithLabelValues(module, status).Observe(duration.Seconds())
}

// RecordBusStatus records whether a module's bus connection is up
func (c *Metrics) RecordBusStatus(module string, connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.BusConnected.WithLabelValues(module).Set(value)
}

// RecordHandlerQueue records how many click events wait for a module
func (c *Metrics) RecordHandlerQueue(module string, depth int) {
	if c == nil {
		return
	}
	c.HandlerQueue.WithLabelValues(module).Set(float64(depth))
}
