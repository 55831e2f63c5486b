package sim

import (
	"errors"
	"testing"
)

// funcEvent lets tests inject arbitrary actions into the event loop.
type funcEvent struct {
	time int64
	fn   func(now int64)
}

func (e *funcEvent) Timestamp() int64       { return e.time }
func (e *funcEvent) Priority() int          { return PriorityArrival }
func (e *funcEvent) Execute(sim *Simulator) { e.fn(e.time) }

// scriptedProducer records retry notifications and runs an optional callback.
type scriptedProducer struct {
	notifiedAt []int64
	onRetry    func(now int64)
}

func (p *scriptedProducer) OnRetryAvailable(now int64) {
	p.notifiedAt = append(p.notifiedAt, now)
	if p.onRetry != nil {
		p.onRetry(now)
	}
}

// scriptedConsumer accepts deliveries according to a script and records them.
type scriptedConsumer struct {
	accept      func(now int64, item *WorkItem) bool
	onRetry     func(now int64)
	delivered   []*WorkItem
	deliveredAt []int64
	notifiedAt  []int64
}

func (c *scriptedConsumer) Deliver(now int64, item *WorkItem) bool {
	if c.accept != nil && !c.accept(now, item) {
		return false
	}
	c.delivered = append(c.delivered, item)
	c.deliveredAt = append(c.deliveredAt, now)
	return true
}

func (c *scriptedConsumer) OnRetryAvailable(now int64) {
	c.notifiedAt = append(c.notifiedAt, now)
	if c.onRetry != nil {
		c.onRetry(now)
	}
}

func newTestQueue(t *testing.T, cfg Config) (*Simulator, *WorkQueue, *scriptedProducer, *scriptedConsumer) {
	t.Helper()
	simulator := NewSimulator(1 << 30)
	producer := &scriptedProducer{}
	consumer := &scriptedConsumer{}
	timing := NewFixedLatency(cfg.BaseLatency, cfg.BandwidthTicksPerByte)
	q, err := NewWorkQueue(cfg, simulator, timing, producer, consumer, simulator.Metrics, nil)
	if err != nil {
		t.Fatalf("NewWorkQueue: %v", err)
	}
	return simulator, q, producer, consumer
}

func pushItem(id string) *WorkItem {
	return &WorkItem{ID: id, Size: 64, Dir: DirPush}
}

func TestWorkQueue_AcceptOpensBusyWindow(t *testing.T) {
	// GIVEN an idle queue with base latency 10
	simulator, q, _, _ := newTestQueue(t, Config{Capacity: 1, BaseLatency: 10})

	// WHEN an item is submitted at t=0
	err := q.PushPort().Submit(pushItem("X"))

	// THEN it is accepted and the busy window opens until the release fires
	if err != nil {
		t.Fatalf("Submit: got %v, want accepted", err)
	}
	if !q.IsBusy() {
		t.Error("queue not busy after acceptance")
	}
	simulator.Run()
	if q.IsBusy() {
		t.Error("queue still busy after release")
	}
	if simulator.Metrics.AcceptedPushes != 1 {
		t.Errorf("AcceptedPushes: got %d, want 1", simulator.Metrics.AcceptedPushes)
	}
}

func TestWorkQueue_BusyRejectionRetriesAfterRelease(t *testing.T) {
	// GIVEN a single-slot queue with base latency 10 and an accepting consumer
	simulator, q, producer, consumer := newTestQueue(t, Config{Capacity: 1, BaseLatency: 10})

	var rejectErr error
	var retryErr error
	var retryAcceptedAt int64 = -1
	itemY := pushItem("Y")
	producer.onRetry = func(now int64) {
		retryErr = q.PushPort().Submit(itemY)
		retryAcceptedAt = now
	}

	// WHEN X is submitted at t=0 and Y at t=5, inside the busy window
	if err := q.PushPort().Submit(pushItem("X")); err != nil {
		t.Fatalf("Submit X: got %v, want accepted", err)
	}
	simulator.Schedule(&funcEvent{time: 5, fn: func(now int64) {
		rejectErr = q.PushPort().Submit(itemY)
	}})
	simulator.Run()

	// THEN Y is rejected busy at t=5 and notified exactly once, at t=10
	if !errors.Is(rejectErr, ErrBusy) {
		t.Errorf("Submit Y: got %v, want ErrBusy", rejectErr)
	}
	if len(producer.notifiedAt) != 1 || producer.notifiedAt[0] != 10 {
		t.Fatalf("producer notifications: got %v, want [10]", producer.notifiedAt)
	}

	// AND the resubmission of Y at t=10 is accepted and delivered at t=20
	if retryErr != nil {
		t.Errorf("resubmit Y: got %v, want accepted", retryErr)
	}
	if retryAcceptedAt != 10 {
		t.Errorf("resubmit tick: got %d, want 10", retryAcceptedAt)
	}
	wantIDs := []string{"X", "Y"}
	wantAt := []int64{10, 20}
	if len(consumer.delivered) != 2 {
		t.Fatalf("deliveries: got %d, want 2", len(consumer.delivered))
	}
	for i := range wantIDs {
		if consumer.delivered[i].ID != wantIDs[i] || consumer.deliveredAt[i] != wantAt[i] {
			t.Errorf("delivery[%d]: got %s at %d, want %s at %d",
				i, consumer.delivered[i].ID, consumer.deliveredAt[i], wantIDs[i], wantAt[i])
		}
	}
}

func TestWorkQueue_BackpressureHoldsItemAtHead(t *testing.T) {
	// GIVEN a consumer that declines every delivery
	simulator, q, _, consumer := newTestQueue(t, Config{Capacity: 1, BaseLatency: 10})
	attempts := 0
	consumer.accept = func(now int64, item *WorkItem) bool {
		attempts++
		return false
	}

	// WHEN an item is pushed through the queue
	if err := q.PushPort().Submit(pushItem("X")); err != nil {
		t.Fatalf("Submit: got %v, want accepted", err)
	}
	simulator.Run()

	// THEN exactly one delivery was attempted and the item stays at the head
	if attempts != 1 {
		t.Errorf("delivery attempts: got %d, want 1 (no synchronous retry loop)", attempts)
	}
	if q.Depth() != 1 {
		t.Errorf("depth: got %d, want 1", q.Depth())
	}
	if simulator.Metrics.RejectedBackpressure != 1 {
		t.Errorf("RejectedBackpressure: got %d, want 1", simulator.Metrics.RejectedBackpressure)
	}
}

func TestWorkQueue_RespRetryDrainsAfterBackpressure(t *testing.T) {
	// GIVEN a consumer that declines deliveries before t=50
	simulator, q, _, consumer := newTestQueue(t, Config{Capacity: 1, BaseLatency: 10})
	consumer.accept = func(now int64, item *WorkItem) bool {
		return now >= 50
	}

	var retryErr error
	if err := q.PushPort().Submit(pushItem("X")); err != nil {
		t.Fatalf("Submit: got %v, want accepted", err)
	}

	// WHEN the consumer signals at t=50 that delivery may be retried
	simulator.Schedule(&funcEvent{time: 50, fn: func(now int64) {
		retryErr = q.PopPort().RecvRespRetry()
	}})
	simulator.Run()

	// THEN the held item is delivered at t=50 and storage drains
	if retryErr != nil {
		t.Errorf("RecvRespRetry: got %v, want nil", retryErr)
	}
	if len(consumer.delivered) != 1 || consumer.deliveredAt[0] != 50 {
		t.Fatalf("deliveries: got %v at %v, want [X] at [50]", len(consumer.delivered), consumer.deliveredAt)
	}
	if !q.IsEmpty() {
		t.Error("storage did not drain after successful retry")
	}
}

func TestWorkQueue_FIFOOrderSurvivesBackpressure(t *testing.T) {
	// GIVEN a two-slot queue whose consumer declines everything before t=100
	simulator, q, _, consumer := newTestQueue(t, Config{Capacity: 2, BaseLatency: 5})
	consumer.accept = func(now int64, item *WorkItem) bool {
		return now >= 100
	}

	// WHEN X is accepted at t=0 and Y at t=5, and the consumer unblocks at t=100
	if err := q.PushPort().Submit(pushItem("X")); err != nil {
		t.Fatalf("Submit X: got %v, want accepted", err)
	}
	simulator.Schedule(&funcEvent{time: 5, fn: func(now int64) {
		if err := q.PushPort().Submit(pushItem("Y")); err != nil {
			t.Errorf("Submit Y: got %v, want accepted", err)
		}
	}})
	simulator.Schedule(&funcEvent{time: 100, fn: func(now int64) {
		if err := q.PopPort().RecvRespRetry(); err != nil {
			t.Errorf("RecvRespRetry: got %v, want nil", err)
		}
	}})
	simulator.Run()

	// THEN both items are delivered in acceptance order, X before Y
	got := make([]string, 0, len(consumer.delivered))
	for _, item := range consumer.delivered {
		got = append(got, item.ID)
	}
	want := []string{"X", "Y"}
	if len(got) != len(want) {
		t.Fatalf("deliveries: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery order[%d]: got %s, want %s", i, got[i], want[i])
		}
	}
	if q.Depth() != 0 {
		t.Errorf("depth after drain: got %d, want 0", q.Depth())
	}
}

func TestWorkQueue_FullRejectionNotifiedWhenSlotFrees(t *testing.T) {
	// GIVEN a full single-slot queue whose consumer is blocked before t=30
	simulator, q, producer, consumer := newTestQueue(t, Config{Capacity: 1, BaseLatency: 0})
	consumer.accept = func(now int64, item *WorkItem) bool {
		return now >= 30
	}

	var fullErr error
	var retryErr error
	itemY := pushItem("Y")
	producer.onRetry = func(now int64) {
		retryErr = q.PushPort().Submit(itemY)
	}

	if err := q.PushPort().Submit(pushItem("X")); err != nil {
		t.Fatalf("Submit X: got %v, want accepted", err)
	}

	// WHEN Y arrives while storage is full, and the consumer unblocks at t=30
	simulator.Schedule(&funcEvent{time: 10, fn: func(now int64) {
		fullErr = q.PushPort().Submit(itemY)
	}})
	simulator.Schedule(&funcEvent{time: 30, fn: func(now int64) {
		if err := q.PopPort().RecvRespRetry(); err != nil {
			t.Errorf("RecvRespRetry: got %v, want nil", err)
		}
	}})
	simulator.Run()

	// THEN Y was rejected full, notified once when the slot freed, and accepted
	if !errors.Is(fullErr, ErrFull) {
		t.Errorf("Submit Y: got %v, want ErrFull", fullErr)
	}
	if len(producer.notifiedAt) != 1 || producer.notifiedAt[0] != 30 {
		t.Fatalf("producer notifications: got %v, want [30]", producer.notifiedAt)
	}
	if retryErr != nil {
		t.Errorf("resubmit Y: got %v, want accepted", retryErr)
	}
	if simulator.Metrics.RejectedFull != 1 {
		t.Errorf("RejectedFull: got %d, want 1", simulator.Metrics.RejectedFull)
	}
}

func TestWorkQueue_SpuriousRespRetryIsContractViolation(t *testing.T) {
	// GIVEN an idle queue with no rejection outstanding
	_, q, _, _ := newTestQueue(t, Config{Capacity: 1, BaseLatency: 10})

	// WHEN a retry notification is replayed out of the blue
	err := q.PopPort().RecvRespRetry()

	// THEN it is reported as a contract violation, not silently ignored
	if !errors.Is(err, ErrRetryContract) {
		t.Errorf("RecvRespRetry: got %v, want ErrRetryContract", err)
	}
}

func TestWorkQueue_PopDemandPassesAcceptanceGate(t *testing.T) {
	// GIVEN an idle queue
	simulator, q, _, _ := newTestQueue(t, Config{Capacity: 4, BaseLatency: 5})

	// WHEN the consumer submits an explicit pop demand
	err := q.PopPort().Submit(&WorkItem{ID: "demand", Dir: DirPop})
	simulator.Run()

	// THEN the demand is accepted, occupies the busy window, and leaves
	// storage untouched
	if err != nil {
		t.Fatalf("Submit demand: got %v, want accepted", err)
	}
	if simulator.Metrics.AcceptedPops != 1 {
		t.Errorf("AcceptedPops: got %d, want 1", simulator.Metrics.AcceptedPops)
	}
	if q.Depth() != 0 {
		t.Errorf("depth: got %d, want 0", q.Depth())
	}
}

func TestWorkQueue_PopRejectionNotifiedBeforePush(t *testing.T) {
	// GIVEN both sides rejected during the same busy window
	simulator, q, producer, consumer := newTestQueue(t, Config{Capacity: 4, BaseLatency: 10})

	var order []string
	producer.onRetry = func(now int64) { order = append(order, "push") }
	consumer.onRetry = func(now int64) { order = append(order, "pop") }

	if err := q.PushPort().Submit(pushItem("X")); err != nil {
		t.Fatalf("Submit X: got %v, want accepted", err)
	}
	simulator.Schedule(&funcEvent{time: 1, fn: func(now int64) {
		if err := q.PopPort().Submit(&WorkItem{ID: "demand", Dir: DirPop}); !errors.Is(err, ErrBusy) {
			t.Errorf("pop during busy: got %v, want ErrBusy", err)
		}
	}})
	simulator.Schedule(&funcEvent{time: 2, fn: func(now int64) {
		if err := q.PushPort().Submit(pushItem("Y")); !errors.Is(err, ErrBusy) {
			t.Errorf("push during busy: got %v, want ErrBusy", err)
		}
	}})
	simulator.Run()

	// THEN the pop side is notified before the push side at release
	if len(consumer.notifiedAt) != 1 || consumer.notifiedAt[0] != 10 {
		t.Errorf("consumer notifications: got %v, want [10]", consumer.notifiedAt)
	}
	if len(producer.notifiedAt) != 1 || producer.notifiedAt[0] != 10 {
		t.Errorf("producer notifications: got %v, want [10]", producer.notifiedAt)
	}
	if len(order) != 2 || order[0] != "pop" || order[1] != "push" {
		t.Errorf("notification order: got %v, want [pop push]", order)
	}
}

func TestWorkQueue_InvalidConfigRejectedAtConstruction(t *testing.T) {
	simulator := NewSimulator(100)
	producer := &scriptedProducer{}
	consumer := &scriptedConsumer{}
	timing := NewFixedLatency(10, 0)

	for _, cfg := range []Config{
		{Capacity: 0, BaseLatency: 10},
		{Capacity: -3, BaseLatency: 10},
		{Capacity: 1, BaseLatency: -1},
		{Capacity: 1, BaseLatency: 10, LatencyJitter: -2},
	} {
		_, err := NewWorkQueue(cfg, simulator, timing, producer, consumer, nil, nil)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewWorkQueue(%+v): got %v, want ErrInvalidConfig", cfg, err)
		}
	}
}

func TestWorkQueue_OccupancyFlagsTrackStorage(t *testing.T) {
	// GIVEN a two-slot queue with an always-declining consumer
	simulator, q, _, consumer := newTestQueue(t, Config{Capacity: 2, BaseLatency: 1})
	consumer.accept = func(now int64, item *WorkItem) bool { return false }

	if !q.IsEmpty() || q.IsFull() {
		t.Fatal("fresh queue must be empty and not full")
	}

	// WHEN two items pass through their latency windows
	if err := q.PushPort().Submit(pushItem("X")); err != nil {
		t.Fatalf("Submit X: %v", err)
	}
	simulator.Schedule(&funcEvent{time: 2, fn: func(now int64) {
		if err := q.PushPort().Submit(pushItem("Y")); err != nil {
			t.Errorf("Submit Y: %v", err)
		}
	}})
	simulator.Run()

	// THEN the occupancy flags match the storage contents exactly
	if q.Depth() != 2 {
		t.Fatalf("depth: got %d, want 2", q.Depth())
	}
	if !q.IsFull() {
		t.Error("IsFull: got false at capacity")
	}
	if q.IsEmpty() {
		t.Error("IsEmpty: got true with items stored")
	}
}
