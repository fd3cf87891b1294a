// Package module implements the producers that fill the bar's slots.
//
// Four kinds exist and the set is closed:
//
//   - clock: the current time, ticking on interval boundaries; a click
//     switches to an alternate layout
//   - bus: properties of one object on D-Bus or a NATS property bus,
//     re-rendered on every change signal; clicks toggle a property or call a
//     method
//   - poll: a value fetched on a timer from an HTTP JSON endpoint or a
//     Prometheus instant query
//   - static: fixed text, the first line of a shell command's output, or the
//     first line of a watched file; clicks run per-button commands
//
// New builds a Module from a Spec. Every module runs until its context is
// cancelled and reports blocks through a Sink.
//
// # Failure handling
//
// Transient failures are retried with exponential backoff (see
// pkg/retry.Backoff). While the delay is below its cap nothing is shown and
// the last good block stays on the bar. Once the cap is reached each further
// failure emits an urgent "<name>: retrying: <error>" block. After
// MaxAttempts consecutive failures, or on a fatal or configuration error,
// the module emits "<name>: error: <error>" and Run returns an error that
// satisfies errors.IsFatal.
//
// # Formats
//
// Blocks are rendered with text/template. Templates see .Name and .Value
// plus kind-specific fields (.Props for bus, .Doc, .Labels and .Samples for
// poll, .Matches for static) and the helpers bar, bar1, round, lower and
// upper:
//
//	{{bar 0 100 .Value}} {{round 1 .Value}}%
package module
