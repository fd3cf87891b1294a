package module

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/swaybar/pkg/retry"
	"github.com/c360/swaybar/protocol"
	"github.com/c360/swaybar/testutil"
)

// delays records every backoff sleep instead of waiting it out
type delays struct {
	mu  sync.Mutex
	got []time.Duration
}

func (d *delays) sleep(ctx context.Context, dur time.Duration) error {
	d.mu.Lock()
	d.got = append(d.got, dur)
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

func (d *delays) all() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.got...)
}

func testDeps(d *delays, backoff retry.Config) Deps {
	return Deps{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Backoff: backoff,
		Sleep:   d.sleep,
	}
}

func fastBackoff(maxAttempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
	}
}

// runModule starts m and returns a stop function that cancels it and
// returns Run's result.
func runModule(t *testing.T, m Module, sink Sink) (stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, sink) }()

	var once sync.Once
	var result error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("module did not stop")
			}
		})
		return result
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

// runToEnd runs m until it returns by itself
func runToEnd(t *testing.T, m Module, sink Sink) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.Run(ctx, sink)
	require.NoError(t, ctx.Err(), "module should stop on its own")
	return err
}

func hasText(text string) func([]protocol.Block) bool {
	return func(blocks []protocol.Block) bool {
		return len(blocks) > 0 && blocks[len(blocks)-1].FullText == text
	}
}

func anyText(text string) func([]protocol.Block) bool {
	return func(blocks []protocol.Block) bool {
		for _, b := range blocks {
			if b.FullText == text {
				return true
			}
		}
		return false
	}
}

func hasUrgentPrefix(prefix string) func([]protocol.Block) bool {
	return func(blocks []protocol.Block) bool {
		for _, b := range blocks {
			if b.Urgent && strings.HasPrefix(b.FullText, prefix) {
				return true
			}
		}
		return false
	}
}

func newSink() *testutil.RecordingSink {
	return testutil.NewRecordingSink()
}
