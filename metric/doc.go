// Package metric provides Prometheus-based metrics collection and an HTTP
// server for swaybar observability.
//
// The package offers a registry holding the core engine metrics (aggregator
// updates and coalescing, frames written, click routing, module errors and
// backoff state) plus extension points for component-specific metrics.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9273, "/metrics", registry, logger)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
//
// Components receive registry.CoreMetrics() and call its Record helpers. The
// helpers accept a nil *Metrics, so components work unchanged when metrics are
// disabled.
//
// The server binds to the loopback interface only: a status bar has no
// business exposing metrics to the network.
package metric
