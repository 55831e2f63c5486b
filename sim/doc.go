// Package sim provides a discrete-event simulation of a bounded, dual-ported
// work-item queue: a producer pushes items through one port, a consumer
// receives them through the other, with an acceptance-latency window and
// explicit retry handshakes on both ports.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - item.go: WorkItem and DeferredItem, the records moved through the queue
//   - event.go: Event types that drive the simulation (Release, Deliver)
//   - simulator.go: The event loop and its same-tick ordering rule
//
// Then workqueue.go, which holds the queue engine state machine: admission
// through the busy/full gate, latency-delayed release into storage, delivery
// with backpressure, and the retry flags that make rejections recoverable.
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Scheduler: how the engine schedules its own future events
//   - TimingModel: the latency applied to each accepted item
//   - Producer, Consumer: the external parties attached to the two ports
//
// All state transitions happen inside event handlers invoked at a specific
// simulated tick. There is no parallel execution and no locking; mutual
// exclusion follows from never yielding mid-transition.
package sim
