package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/c360/swaybar/protocol"
)

// RecordingSink collects every block a module emits.
// Thread-safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	blocks []protocol.Block
}

// NewRecordingSink creates an empty sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Emit records block
func (s *RecordingSink) Emit(ctx context.Context, block protocol.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, block)
	return nil
}

// Blocks returns a copy of everything recorded so far
func (s *RecordingSink) Blocks() []protocol.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Block(nil), s.blocks...)
}

// Len returns the number of recorded blocks
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// Last returns the newest block, or the zero block
func (s *RecordingSink) Last() protocol.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blocks) == 0 {
		return protocol.Block{}
	}
	return s.blocks[len(s.blocks)-1]
}

// WaitFor polls until cond holds for the recorded blocks or timeout
// passes, failing the test in the latter case.
func (s *RecordingSink) WaitFor(t testing.TB, timeout time.Duration, cond func([]protocol.Block) bool) []protocol.Block {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		blocks := s.Blocks()
		if cond(blocks) {
			return blocks
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v; blocks: %+v", timeout, blocks)
			return blocks
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WaitForLen waits until at least n blocks were recorded
func (s *RecordingSink) WaitForLen(t testing.TB, n int, timeout time.Duration) []protocol.Block {
	t.Helper()
	return s.WaitFor(t, timeout, func(b []protocol.Block) bool { return len(b) >= n })
}
