package sim

import "errors"

// Rejection errors returned by PortEndpoint.Submit. All three are
// recoverable: the rejected party is told exactly once, via a later retry
// notification, when it may re-attempt.
var (
	// ErrBusy: a prior acceptance's latency window is still open.
	ErrBusy = errors.New("workqueue: rejected, acceptance window busy")

	// ErrFull: storage is at capacity.
	ErrFull = errors.New("workqueue: rejected, storage full")

	// ErrBackpressure: the destination endpoint declined a delivery.
	ErrBackpressure = errors.New("workqueue: rejected, destination backpressure")
)

// ErrInvalidConfig is returned (wrapped with detail) for configuration that
// must be rejected before any simulated time advances.
var ErrInvalidConfig = errors.New("workqueue: invalid configuration")

// ErrRetryContract reports a retry notification received while no rejection
// is outstanding. This is a programming-contract violation by the
// collaborator, not a recoverable rejection.
var ErrRetryContract = errors.New("workqueue: retry notification with no outstanding rejection")
