// Package retry provides exponential backoff for transient failures.
//
// # Overview
//
// Two shapes are offered. Do and DoWithResult wrap a single operation and
// retry it in place. Backoff is a stateful delay sequence for long-running
// loops that own their own timing, such as a module that keeps refreshing a
// value and must surface an error block while it waits.
//
// # Configuration Presets
//
//   - DefaultConfig(): 20 attempts, 1s doubling to a 60s cap, no jitter
//   - Quick(): 10 attempts, 50ms-1s delay with jitter (connection setup)
//
// # Usage
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
// In a run loop:
//
//	b := retry.NewBackoff(cfg)
//	for {
//	    if err := fetch(ctx); err == nil {
//	        b.Reset()
//	        continue
//	    }
//	    delay, ok := b.Next()
//	    if !ok {
//	        return lastErr // attempts exhausted
//	    }
//	    if b.Saturated() {
//	        // delay has reached MaxDelay
//	    }
//	    if err := retry.Sleep(ctx, delay); err != nil {
//	        return err
//	    }
//	}
//
// Errors wrapped with NonRetryable stop Do immediately.
//
// # Context Cancellation
//
// Every wait honours ctx; a cancelled context ends the retry with ctx.Err().
package retry
