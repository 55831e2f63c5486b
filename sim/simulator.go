// sim/simulator.go
package sim

import (
	"container/heap"

	"github.com/sirupsen/logrus"
)

// EventQueue implements heap.Interface and orders events by timestamp,
// breaking same-tick ties by priority (Release before Deliver before
// Arrival). See canonical Golang example here:
// https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue []Event

func (eq EventQueue) Len() int { return len(eq) }

func (eq EventQueue) Less(i, j int) bool {
	if eq[i].Timestamp() != eq[j].Timestamp() {
		return eq[i].Timestamp() < eq[j].Timestamp()
	}
	return eq[i].Priority() < eq[j].Priority()
}

func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(Event))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

// Scheduler is the narrow view of the simulator that components use to
// schedule their own future events. Time is monotonic and every scheduled
// event is delivered exactly once.
type Scheduler interface {
	Schedule(ev Event)
	Now() int64
}

// Simulator is the core object that holds simulation time and the event loop.
type Simulator struct {
	Clock   int64
	Horizon int64
	// EventQueue has all the simulator events, like arrival, release and deliver events
	EventQueue EventQueue
	// Metrics aggregates run-wide statistics for final reporting
	Metrics *Metrics
}

// NewSimulator creates an empty simulator that runs until its event queue
// drains or the horizon is passed.
func NewSimulator(horizon int64) *Simulator {
	return &Simulator{
		Clock:      0,
		Horizon:    horizon,
		EventQueue: make(EventQueue, 0),
		Metrics:    NewMetrics(),
	}
}

// Schedule pushes an event into the simulator's EventQueue.
func (sim *Simulator) Schedule(ev Event) {
	heap.Push(&sim.EventQueue, ev)
}

// Now returns the current simulated time in ticks.
func (sim *Simulator) Now() int64 {
	return sim.Clock
}

// Run drains the event queue in (timestamp, priority) order, advancing the
// clock as it goes. The caller must have scheduled the initial events.
func (sim *Simulator) Run() {
	for len(sim.EventQueue) > 0 {
		// get the next event to be simulated
		ev := heap.Pop(&sim.EventQueue).(Event)
		// advance the clock
		sim.Clock = ev.Timestamp()
		logrus.Debugf("[tick %07d] Executing %T", sim.Clock, ev)
		// process the event
		ev.Execute(sim)
		// end the simulation if horizon is reached or if we've run out of events
		if sim.Clock > sim.Horizon {
			break
		}
	}
	sim.Metrics.SimEndedTime = min(sim.Clock, sim.Horizon)
	logrus.Infof("[tick %07d] Simulation ended", sim.Clock)
}
