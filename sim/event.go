package sim

import "github.com/sirupsen/logrus"

// Same-tick ordering: releasing capacity is always processed before the
// delivery that may consume it, and external arrivals observe the state
// both leave behind.
const (
	PriorityRelease = iota
	PriorityDeliver
	PriorityArrival
)

// Event defines the interface for all simulation events.
// Each event has a Timestamp (in ticks), a Priority used to break ties
// between events scheduled at the same tick, and an Execute method that
// advances simulation state when invoked.
type Event interface {
	Timestamp() int64
	Priority() int
	Execute(*Simulator)
}

// ReleaseEvent fires at the end of an accepted item's latency window and
// moves it out of the acceptance path.
type ReleaseEvent struct {
	time  int64
	queue *WorkQueue
}

// Timestamp returns the scheduled time of the ReleaseEvent.
func (e *ReleaseEvent) Timestamp() int64 {
	return e.time
}

func (e *ReleaseEvent) Priority() int {
	return PriorityRelease
}

// Execute releases the queue after being busy and sends a retry if a
// request was rejected in the meanwhile.
func (e *ReleaseEvent) Execute(sim *Simulator) {
	logrus.Debugf("<< Release at %d ticks", e.time)
	e.queue.release()
}

// DeliverEvent attempts to hand the item at the head of storage to the
// consumer endpoint.
type DeliverEvent struct {
	time  int64
	queue *WorkQueue
}

// Timestamp returns the scheduled time of the DeliverEvent.
func (e *DeliverEvent) Timestamp() int64 {
	return e.time
}

func (e *DeliverEvent) Priority() int {
	return PriorityDeliver
}

// Execute the DeliverEvent.
func (e *DeliverEvent) Execute(sim *Simulator) {
	logrus.Debugf("<< Deliver at %d ticks", e.time)
	e.queue.deliverPending = false
	e.queue.deliver()
}
