// Package testutil provides fakes shared by the bar's tests.
//
// RecordingSink stands in for an aggregator slot and records every block a
// module emits, with polling helpers for asynchronous assertions.
//
// MockBusClient is an in-memory bus.Client: Get serves a property map,
// Set and Call are recorded, and Emit, Interrupt and Drop push change
// signals, transient interruptions and connection loss into open
// subscriptions. MockDialer scripts a sequence of dial outcomes so tests can
// exercise reconnect paths.
//
// JSONServer starts an httptest server that plays back scripted responses
// for poll module tests.
package testutil
