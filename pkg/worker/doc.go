// Package worker provides a generic, thread-safe worker pool for concurrent task processing.
//
// # Overview
//
// A Pool owns a fixed number of goroutines reading from a bounded channel.
// Submit never blocks: when the queue is at capacity the item is dropped and
// ErrQueueFull is returned, so producers such as the click dispatcher are
// never stalled by a slow handler.
//
// The status bar runs one pool per module slot with a single worker, which
// serializes click handlers for that module while keeping them off the
// aggregator's goroutine.
//
// # Usage
//
//	pool := worker.NewPool(1, 8, handleClick,
//	    worker.WithMetrics[protocol.ClickEvent](metrics, "clock"),
//	    worker.WithErrorHandler(func(ev protocol.ClickEvent, err error) {
//	        logger.Warn("click handler failed", "error", err)
//	    }),
//	)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(time.Second)
//
//	if err := pool.Submit(ev); errors.Is(err, worker.ErrQueueFull) {
//	    // dropped
//	}
//
// # Observability
//
// Stats are tracked with atomics and are always available through Stats().
// WithMetrics additionally reports submissions, drops and handler durations
// to the shared Prometheus metrics, labelled with the pool's owner.
package worker
