// Implements the queue engine: a bounded, dual-ported work-item queue with an
// acceptance-latency window, busy/full/empty bookkeeping, and explicit retry
// handshakes on both ports. All transitions run inside event handlers at a
// simulated tick; once accepted, an item is never lost or duplicated.

package sim

import "github.com/sirupsen/logrus"

// WorkQueue owns the bounded storage, the busy/full/empty state, and the two
// internal events (release, deliver) that drive admission and delivery.
//
// Admission: a submission on either port passes the acceptance gate only when
// the queue is neither busy nor full. Acceptance opens a busy window of
// TimingModel.Latency ticks; the deferred item releases when it closes.
// Delivery: whenever storage is non-empty and no delivery is awaiting retry,
// the head item is offered to the consumer, which may decline (backpressure).
type WorkQueue struct {
	sched   Scheduler
	timing  TimingModel
	metrics *Metrics
	inst    *Instruments

	producer Producer
	consumer Consumer

	popPort  *PortEndpoint
	pushPort *PortEndpoint

	// Bounded FIFO of work items. Invariant: isFull iff len == capacity,
	// isEmpty iff len == 0, checked after every mutation.
	storage  []*WorkItem
	capacity int

	// Accepted requests spend their latency window here, ordered by release
	// tick. The busy window admits one acceptance at a time, so the queue
	// holds at most one entry; kept as a sequence to match storage handling.
	pending []*DeferredItem

	isBusy  bool
	isFull  bool
	isEmpty bool

	// Set only after a rejection on the matching port; cleared exactly once,
	// at the retry notification. Never exposed for external mutation.
	retryPop  bool
	retryPush bool

	// Set when the consumer declined a delivery; the head item stays put and
	// no other delivery may start until the consumer retries.
	retryResp bool

	// True while a DeliverEvent is already on the event queue.
	deliverPending bool
}

// NewWorkQueue validates the configuration and wires the engine to its
// collaborators. Instruments may be nil to disable instrumentation.
func NewWorkQueue(cfg Config, sched Scheduler, timing TimingModel,
	producer Producer, consumer Consumer, metrics *Metrics, inst *Instruments,
) (*WorkQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	q := &WorkQueue{
		sched:    sched,
		timing:   timing,
		metrics:  metrics,
		inst:     inst,
		producer: producer,
		consumer: consumer,
		capacity: cfg.Capacity,
		isEmpty:  true,
	}
	q.popPort = newPortEndpoint("workqueue.pop", DirPop, cfg.PopPortAddr, q)
	q.pushPort = newPortEndpoint("workqueue.push", DirPush, cfg.PushPortAddr, q)
	return q, nil
}

// PopPort returns the consumer-facing endpoint.
func (q *WorkQueue) PopPort() *PortEndpoint {
	return q.popPort
}

// PushPort returns the producer-facing endpoint.
func (q *WorkQueue) PushPort() *PortEndpoint {
	return q.pushPort
}

// Depth returns the number of items currently in storage.
func (q *WorkQueue) Depth() int {
	return len(q.storage)
}

// IsBusy reports whether an acceptance-latency window is open.
func (q *WorkQueue) IsBusy() bool { return q.isBusy }

// IsFull reports whether storage is at capacity.
func (q *WorkQueue) IsFull() bool { return q.isFull }

// IsEmpty reports whether storage holds no items.
func (q *WorkQueue) IsEmpty() bool { return q.isEmpty }

// submit is the acceptance gate shared by both ports. On rejection the
// matching retry flag is armed; the only state change a rejected submission
// leaves behind.
func (q *WorkQueue) submit(item *WorkItem, dir Direction) error {
	now := q.sched.Now()
	if q.isBusy {
		q.armRetry(dir)
		q.metrics.RejectedBusy++
		q.inst.recordRejection("busy")
		return ErrBusy
	}
	if q.isFull {
		q.armRetry(dir)
		q.metrics.RejectedFull++
		q.inst.recordRejection("full")
		return ErrFull
	}

	q.isBusy = true
	releaseTick := now + q.timing.Latency(item)
	q.pending = append(q.pending, &DeferredItem{Item: item, ReleaseTick: releaseTick, Dest: dir})
	q.sched.Schedule(&ReleaseEvent{time: releaseTick, queue: q})

	if dir == DirPush {
		q.metrics.AcceptedPushes++
	} else {
		q.metrics.AcceptedPops++
	}
	q.inst.recordAccept(dir)
	logrus.Debugf("workqueue: accepted %s submission at %d, release at %d", dir, now, releaseTick)
	return nil
}

func (q *WorkQueue) armRetry(dir Direction) {
	if dir == DirPush {
		q.retryPush = true
	} else {
		q.retryPop = true
	}
}

// release closes the busy window. A push-destined item enters storage; a
// pop-destined release arms a delivery attempt toward the consumer. If a
// side was rejected in the meanwhile, it is notified it may retry, pop side
// first, so a blocked consumer gets first use of the freed window. The
// notification may trigger a new acceptance within this same handler.
func (q *WorkQueue) release() {
	now := q.sched.Now()
	d := q.pending[0]
	q.pending = q.pending[1:]
	q.isBusy = false

	if d.Dest == DirPush {
		q.storage = append(q.storage, d.Item)
		q.updateOccupancy()
		logrus.Debugf("workqueue: released item into storage at %d, depth=%d", now, len(q.storage))
	} else {
		logrus.Debugf("workqueue: released pop request at %d", now)
	}

	q.notifyWaiters(now)

	if len(q.storage) > 0 {
		q.scheduleDeliver(now)
	}
}

// notifyWaiters issues pending retry notifications, but only once the
// acceptance gate is actually open: a release that fills storage defers the
// notification to the delivery that frees a slot again. The pop side goes
// first, and each resubmission may close the gate for the next waiter.
// Flags clear before the callback, so a re-rejected resubmission arms them
// anew; set-once/clear-once holds per rejection.
func (q *WorkQueue) notifyWaiters(now int64) {
	if q.retryPop && !q.isBusy && !q.isFull {
		q.retryPop = false
		q.metrics.RetryNotifications++
		q.inst.recordRetry(DirPop)
		q.popPort.notifyRetry(now)
	}
	if q.retryPush && !q.isBusy && !q.isFull {
		q.retryPush = false
		q.metrics.RetryNotifications++
		q.inst.recordRetry(DirPush)
		q.pushPort.notifyRetry(now)
	}
}

// deliver offers the head of storage to the consumer. Declined deliveries
// leave the item in place and block all delivery until recvRespRetry; at most
// one delivery is ever outstanding.
func (q *WorkQueue) deliver() {
	if q.retryResp || len(q.storage) == 0 {
		return
	}
	now := q.sched.Now()
	head := q.storage[0]
	if !q.consumer.Deliver(now, head) {
		q.retryResp = true
		q.metrics.RejectedBackpressure++
		q.inst.recordRejection("backpressure")
		logrus.Debugf("workqueue: delivery of %s backpressured at %d", head.ID, now)
		return
	}

	q.storage = q.storage[1:]
	q.updateOccupancy()
	q.metrics.Delivered++
	q.inst.recordDelivery()
	logrus.Debugf("workqueue: delivered %s at %d, depth=%d", head.ID, now, len(q.storage))

	// A freed slot may open the acceptance gate for a rejected sender.
	q.notifyWaiters(now)

	if len(q.storage) > 0 {
		q.scheduleDeliver(now)
	}
}

// recvRespRetry handles the consumer's notification that a backpressured
// delivery may be re-attempted. The delivery is re-run exactly once; if the
// consumer declines again the retry flag re-arms and the engine waits for
// the next notification rather than looping.
func (q *WorkQueue) recvRespRetry() error {
	if !q.retryResp {
		return ErrRetryContract
	}
	q.retryResp = false
	q.deliver()
	return nil
}

func (q *WorkQueue) scheduleDeliver(now int64) {
	if q.deliverPending || q.retryResp {
		return
	}
	q.deliverPending = true
	q.sched.Schedule(&DeliverEvent{time: now, queue: q})
}

func (q *WorkQueue) updateOccupancy() {
	q.isFull = len(q.storage) == q.capacity
	q.isEmpty = len(q.storage) == 0
	q.metrics.FinalDepth = len(q.storage)
	q.inst.setDepth(len(q.storage))
}
