// Synthetic workload harness: a producer that pushes a configured stream of
// items, a consumer that accepts deliveries but declines a deterministic
// fraction of them, and the arrival events that drive both. This is what the
// CLI runs; tests attach their own scripted collaborators instead.

package sim

import (
	"math/rand"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Workload describes the synthetic traffic driven through the queue.
type Workload struct {
	Items       int   // number of items the producer pushes
	PushGap     int64 // ticks between producer arrivals
	PopGap      int64 // ticks between consumer pop demands (0 disables them)
	ItemSizeMin int64 // uniform item size bounds, bytes
	ItemSizeMax int64

	// RejectRatio is the fraction of deliveries the consumer declines,
	// exercising the backpressure handshake. Drawn from the consumer RNG
	// subsystem, so it is reproducible per seed.
	RejectRatio float64

	// ConsumerRetryDelay is how many ticks after declining a delivery the
	// consumer signals it may be retried. Minimum 1.
	ConsumerRetryDelay int64
}

// DefaultWorkload pushes a short item stream with a passive consumer.
func DefaultWorkload() Workload {
	return Workload{
		Items:              100,
		PushGap:            20,
		ItemSizeMin:        64,
		ItemSizeMax:        64,
		ConsumerRetryDelay: 5,
	}
}

// PushArrivalEvent represents the arrival of a new work item at the producer.
type PushArrivalEvent struct {
	time     int64
	producer *SyntheticProducer
	item     *WorkItem
}

// Timestamp returns the scheduled time of the PushArrivalEvent.
func (e *PushArrivalEvent) Timestamp() int64 {
	return e.time
}

func (e *PushArrivalEvent) Priority() int {
	return PriorityArrival
}

// Execute hands the arriving item to the producer, which submits it on the
// push port as soon as the retry protocol allows.
func (e *PushArrivalEvent) Execute(sim *Simulator) {
	logrus.Debugf("<< PushArrival: %s at %d ticks", e.item.ID, e.time)
	e.producer.onArrival(e.time, e.item)
}

// PopArrivalEvent represents the consumer issuing an explicit pop demand.
type PopArrivalEvent struct {
	time     int64
	consumer *SyntheticConsumer
}

// Timestamp returns the scheduled time of the PopArrivalEvent.
func (e *PopArrivalEvent) Timestamp() int64 {
	return e.time
}

func (e *PopArrivalEvent) Priority() int {
	return PriorityArrival
}

// Execute submits a pop demand on the pop port.
func (e *PopArrivalEvent) Execute(sim *Simulator) {
	logrus.Debugf("<< PopArrival at %d ticks", e.time)
	e.consumer.onPopArrival(e.time)
}

// consumerRetryEvent is the consumer telling the queue, some ticks after
// declining a delivery, that it may be re-attempted.
type consumerRetryEvent struct {
	time     int64
	consumer *SyntheticConsumer
}

func (e *consumerRetryEvent) Timestamp() int64 { return e.time }
func (e *consumerRetryEvent) Priority() int    { return PriorityArrival }

func (e *consumerRetryEvent) Execute(sim *Simulator) {
	if err := e.consumer.port.RecvRespRetry(); err != nil {
		logrus.Warnf("consumer retry at %d ticks: %v", e.time, err)
	}
}

// SyntheticProducer buffers arriving items and submits them on the push port,
// honoring the retry protocol: after a rejection it submits nothing until the
// queue notifies it.
type SyntheticProducer struct {
	port          *PortEndpoint
	backlog       []*WorkItem
	awaitingRetry bool
}

func (p *SyntheticProducer) onArrival(now int64, item *WorkItem) {
	p.backlog = append(p.backlog, item)
	if !p.awaitingRetry {
		p.drain(now)
	}
}

// drain submits backlog items until one is rejected or the backlog empties.
// A rejection arms the queue's retry flag, so OnRetryAvailable resumes the
// drain later; the producer is self-clocking.
func (p *SyntheticProducer) drain(now int64) {
	for len(p.backlog) > 0 {
		if err := p.port.Submit(p.backlog[0]); err != nil {
			p.awaitingRetry = true
			return
		}
		p.backlog = p.backlog[1:]
	}
}

// OnRetryAvailable resumes submission after an earlier rejection.
func (p *SyntheticProducer) OnRetryAvailable(now int64) {
	p.awaitingRetry = false
	p.drain(now)
}

// Backlog returns the number of items not yet accepted by the queue.
func (p *SyntheticProducer) Backlog() int {
	return len(p.backlog)
}

// SyntheticConsumer accepts deliveries, declining a configured fraction to
// exercise backpressure, and optionally issues explicit pop demands.
type SyntheticConsumer struct {
	port       *PortEndpoint
	sched      Scheduler
	rng        *rand.Rand
	rejectRate float64
	retryDelay int64

	Received []*WorkItem

	pendingDemands int
	awaitingRetry  bool
}

// Deliver implements Consumer. A declined delivery schedules the retry
// notification retryDelay ticks later.
func (c *SyntheticConsumer) Deliver(now int64, item *WorkItem) bool {
	if c.rejectRate > 0 && c.rng.Float64() < c.rejectRate {
		c.sched.Schedule(&consumerRetryEvent{time: now + c.retryDelay, consumer: c})
		return false
	}
	c.Received = append(c.Received, item)
	return true
}

func (c *SyntheticConsumer) onPopArrival(now int64) {
	c.pendingDemands++
	if !c.awaitingRetry {
		c.drainDemands(now)
	}
}

func (c *SyntheticConsumer) drainDemands(now int64) {
	for c.pendingDemands > 0 {
		demand := &WorkItem{ID: NewItemID(now, c.rng), Dir: DirPop}
		if err := c.port.Submit(demand); err != nil {
			c.awaitingRetry = true
			return
		}
		c.pendingDemands--
	}
}

// OnRetryAvailable resumes pop demands after an earlier rejection.
func (c *SyntheticConsumer) OnRetryAvailable(now int64) {
	c.awaitingRetry = false
	c.drainDemands(now)
}

// Simulation bundles a wired simulator, queue and collaborators, ready to Run.
type Simulation struct {
	Sim      *Simulator
	Queue    *WorkQueue
	Producer *SyntheticProducer
	Consumer *SyntheticConsumer
}

// BuildSimulation wires the queue engine, the synthetic collaborators and the
// arrival stream into a simulator. reg may be nil to skip Prometheus
// registration.
func BuildSimulation(cfg Config, wl Workload, horizon int64, reg prometheus.Registerer) (*Simulation, error) {
	simulator := NewSimulator(horizon)
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	timing := NewTimingModel(cfg, rng)

	retryDelay := wl.ConsumerRetryDelay
	if retryDelay < 1 {
		retryDelay = 1
	}

	producer := &SyntheticProducer{}
	consumer := &SyntheticConsumer{
		sched:      simulator,
		rng:        rng.ForSubsystem(SubsystemConsumer),
		rejectRate: wl.RejectRatio,
		retryDelay: retryDelay,
	}

	var inst *Instruments
	if reg != nil {
		inst = NewInstruments(reg)
	}

	q, err := NewWorkQueue(cfg, simulator, timing, producer, consumer, simulator.Metrics, inst)
	if err != nil {
		return nil, err
	}
	producer.port = q.PushPort()
	consumer.port = q.PopPort()

	wrng := rng.ForSubsystem(SubsystemWorkload)
	sizeSpan := wl.ItemSizeMax - wl.ItemSizeMin
	for i := 0; i < wl.Items; i++ {
		t := int64(i) * wl.PushGap
		size := wl.ItemSizeMin
		if sizeSpan > 0 {
			size += wrng.Int63n(sizeSpan + 1)
		}
		item := &WorkItem{ID: NewItemID(t, wrng), Size: size, Dir: DirPush}
		simulator.Schedule(&PushArrivalEvent{time: t, producer: producer, item: item})
	}
	if wl.PopGap > 0 {
		for i := 0; i < wl.Items; i++ {
			simulator.Schedule(&PopArrivalEvent{time: int64(i) * wl.PopGap, consumer: consumer})
		}
	}

	return &Simulation{Sim: simulator, Queue: q, Producer: producer, Consumer: consumer}, nil
}

// Run executes the simulation to completion.
func (s *Simulation) Run() {
	s.Sim.Run()
}
