// Package health tracks the health of the bar's modules.
//
// Modules report through a Monitor as their retry policy moves between
// states:
//
//	healthy    the last attempt succeeded
//	degraded   attempts are failing and the backoff has reached its cap
//	unhealthy  the module has stopped after a permanent failure
//
// Connections that keep their own state, such as the NATS bus, Attach a
// Check instead; it is evaluated whenever the monitor is read.
//
// Report aggregates every module into the worst state seen, and Handler
// serves that report as JSON for the metrics server's /healthz route.
// Error messages are sanitized before they are stored, since they often
// quote URLs and paths taken from the user's configuration.
package health
