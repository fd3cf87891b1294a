// Package swaybar generates a status line for sway and i3bar.
//
// The bar is a set of independent modules, each owning one slot of the
// line. Modules produce blocks on their own schedule; the aggregator keeps
// the latest block per slot and writes a complete frame to stdout whenever
// any slot changes, coalescing bursts so at most one frame is in flight.
// Click events read from stdin are routed back to the module that owns the
// clicked block.
//
// # Packages
//
//	protocol    i3bar wire format: header, frames, blocks, click events
//	aggregator  slot state, frame coalescing and click routing
//	module      the clock, bus, poll and static module variants
//	scheduler   runs the modules, the aggregator and the click reader
//	bus         property bus clients (D-Bus and NATS backends)
//	natsclient  NATS connection management for the NATS bus backend
//	netclient   HTTP client used by poll modules
//	config      layered configuration with schema validation
//	health      per-module health tracking served at /healthz
//	metric      Prometheus metrics and the metrics HTTP server
//	errors      error classification shared by all packages
//
// The swaybar command in cmd/swaybar wires these together.
package swaybar
