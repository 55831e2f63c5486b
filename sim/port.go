// The two port endpoints of the queue and the collaborator interfaces behind
// them. Endpoints adapt external submissions and retry notifications onto the
// engine; they read queue state but never mutate it directly.

package sim

import "github.com/sirupsen/logrus"

// Producer is the external party attached to the push port.
type Producer interface {
	// OnRetryAvailable tells the producer an earlier rejection may now be
	// retried. Issued exactly once per rejection, after the blocking
	// condition clears; the producer re-attempts via Submit.
	OnRetryAvailable(now int64)
}

// Consumer is the external party attached to the pop port.
type Consumer interface {
	// Deliver hands an item to the consumer. Returning false signals
	// backpressure: the item stays at the head of storage and no further
	// delivery is attempted until the consumer retries via RecvRespRetry.
	Deliver(now int64, item *WorkItem) bool

	// OnRetryAvailable tells the consumer an earlier pop-side rejection may
	// now be retried.
	OnRetryAvailable(now int64)
}

// PortEndpoint is the protocol adapter for one side of the queue. Two
// instances exist per queue: the pop endpoint faces the consumer, the push
// endpoint faces the producer.
type PortEndpoint struct {
	name  string
	dir   Direction
	addr  AddrRange
	queue *WorkQueue
}

func newPortEndpoint(name string, dir Direction, addr AddrRange, q *WorkQueue) *PortEndpoint {
	return &PortEndpoint{name: name, dir: dir, addr: addr, queue: q}
}

// Name returns the endpoint's instance name.
func (p *PortEndpoint) Name() string {
	return p.name
}

// Direction returns which side of the queue this endpoint serves.
func (p *PortEndpoint) Direction() Direction {
	return p.dir
}

// Capabilities returns the static address descriptor of this port. Queried
// once at initialization by the party connecting to it.
func (p *PortEndpoint) Capabilities() AddrRange {
	return p.addr
}

// Submit passes an external request into the queue's acceptance gate.
// Returns nil when accepted; ErrBusy or ErrFull when rejected. A rejection
// arms the port's retry flag, so the caller is notified exactly once when it
// may re-attempt, and MUST NOT submit again before that notification.
func (p *PortEndpoint) Submit(item *WorkItem) error {
	err := p.queue.submit(item, p.dir)
	if err != nil {
		logrus.Debugf("%s: submit rejected: %v", p.name, err)
	}
	return err
}

// RecvRespRetry is invoked by the external party to signal that an earlier
// backpressured delivery may be re-attempted. Returns ErrRetryContract when
// no delivery is awaiting retry.
func (p *PortEndpoint) RecvRespRetry() error {
	return p.queue.recvRespRetry()
}

// notifyRetry forwards the engine's retry notification to the attached party.
func (p *PortEndpoint) notifyRetry(now int64) {
	logrus.Debugf("%s: retry notification at %d ticks", p.name, now)
	if p.dir == DirPush {
		p.queue.producer.OnRetryAvailable(now)
	} else {
		p.queue.consumer.OnRetryAvailable(now)
	}
}
