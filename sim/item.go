// Defines the WorkItem and DeferredItem records moved through the queue.
// The payload is opaque to the engine; it only sizes, queues and forwards.

package sim

import (
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"
)

// Direction identifies one of the two ports of the queue.
type Direction int

const (
	// DirPop is the consumer-facing port.
	DirPop Direction = iota
	// DirPush is the producer-facing port.
	DirPush
)

func (d Direction) String() string {
	switch d {
	case DirPop:
		return "pop"
	case DirPush:
		return "push"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// WorkItem is the opaque unit of data moved through the queue. The engine
// never interprets Payload; ID and Size exist for logging and timing.
type WorkItem struct {
	ID      string    // unique identifier, for logging/tracing only
	Size    int64     // payload size in bytes, input to the timing model
	Dir     Direction // port the item was submitted on
	Payload any       // opaque to the engine
}

// NewItemID derives a ULID from the current tick and the given entropy
// source. Feeding a seeded RNG as entropy keeps item IDs reproducible
// across runs with the same seed.
func NewItemID(tick int64, entropy io.Reader) string {
	return ulid.MustNew(uint64(tick), entropy).String()
}

// DeferredItem pairs an accepted work item with its release tick and the
// port its response is destined for. Immutable once created; owned
// exclusively by the queue engine until released.
type DeferredItem struct {
	Item        *WorkItem
	ReleaseTick int64
	Dest        Direction
}
