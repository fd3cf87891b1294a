// Package scheduler runs a complete bar.
//
// A Scheduler owns one run: it writes the protocol header, starts the
// aggregator and the protocol writer, then one goroutine per module and one
// for the click reader. Module goroutines share nothing; every block they
// produce goes through their aggregator sink, and every click reaches them
// through the aggregator's per-slot handler pools.
//
// Shutdown is triggered by cancelling the context passed to Run or by the
// host closing stdin. Modules and the reader are cancelled first; once they
// have returned the aggregator flushes its last pending snapshot and the
// writer drains. The whole sequence is bounded by Config.ShutdownTimeout.
//
// A write failure on stdout is fatal for the run and is returned from Run.
// A module that fails permanently is not: its error block stays on the bar
// and the other modules keep running.
package scheduler
