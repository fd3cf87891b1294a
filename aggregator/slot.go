package aggregator

import (
	"context"

	"github.com/c360/swaybar/protocol"
)

// ClickHandler reacts to a click routed to one slot
type ClickHandler func(ctx context.Context, event protocol.ClickEvent) error

// SlotSpec describes one configured position on the bar
type SlotSpec struct {
	Name     string
	Instance string
	// OnClick may be nil; clicks for the slot are then dropped after matching.
	OnClick ClickHandler
}

// Slot is the aggregator's record for one module. Index is fixed for the
// life of the process and is the only key joining clicks to modules.
type Slot struct {
	Index      int
	Name       string
	Instance   string
	Block      protocol.Block
	Generation uint64
}

// Key returns the slot's metric and log label
func (s Slot) Key() string {
	return protocol.Key(s.Name, s.Instance)
}

// UpdateMessage carries a module's newest block to the aggregator
type UpdateMessage struct {
	Slot  int
	Block protocol.Block
}

// Sink is handed to exactly one module and forwards its blocks to the slot it
// was created for.
type Sink struct {
	slot    int
	updates chan<- UpdateMessage
}

// Emit queues block as the slot's new content. It blocks until the
// aggregator accepts the message or ctx is done.
func (s Sink) Emit(ctx context.Context, block protocol.Block) error {
	select {
	case s.updates <- UpdateMessage{Slot: s.slot, Block: block}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Slot returns the index the sink writes to
func (s Sink) Slot() int {
	return s.slot
}
