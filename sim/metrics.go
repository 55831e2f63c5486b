// Tracks run-wide statistics about the queue for final reporting, plus the
// Prometheus instruments exposed for observability.

package sim

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates statistics about the simulation for final reporting.
// Useful for evaluating flow-control behavior and debugging traces.
type Metrics struct {
	AcceptedPushes int // accepted submissions on the push port
	AcceptedPops   int // accepted submissions on the pop port
	Delivered      int // items handed to the consumer

	RejectedBusy         int // submissions rejected during a busy window
	RejectedFull         int // submissions rejected at capacity
	RejectedBackpressure int // deliveries declined by the consumer

	RetryNotifications int // retry notifications issued to either port

	FinalDepth   int   // items left in storage when the run ended
	SimEndedTime int64 // tick at which the run ended
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Print displays aggregated metrics at the end of the simulation.
func (m *Metrics) Print() {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Accepted Pushes      : %d\n", m.AcceptedPushes)
	fmt.Printf("Accepted Pops        : %d\n", m.AcceptedPops)
	fmt.Printf("Delivered Items      : %d\n", m.Delivered)
	fmt.Printf("Rejected (busy)      : %d\n", m.RejectedBusy)
	fmt.Printf("Rejected (full)      : %d\n", m.RejectedFull)
	fmt.Printf("Backpressured        : %d\n", m.RejectedBackpressure)
	fmt.Printf("Retry Notifications  : %d\n", m.RetryNotifications)
	fmt.Printf("Final Queue Depth    : %d\n", m.FinalDepth)
	fmt.Printf("Sim Ended            : %d ticks\n", m.SimEndedTime)
}

// Instruments groups the Prometheus instruments exposed by the queue.
// Registered once at startup via NewInstruments; passed by pointer wherever
// needed. A nil *Instruments disables instrumentation, so the engine can run
// without a registry in tests.
type Instruments struct {
	Pushes     prometheus.Counter
	Pops       prometheus.Counter
	Deliveries prometheus.Counter
	Rejections *prometheus.CounterVec
	Retries    *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// NewInstruments registers all instruments with the given Prometheus
// registerer and returns the populated Instruments struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func NewInstruments(reg prometheus.Registerer) *Instruments {
	i := &Instruments{
		Pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workqueue_pushes_total",
			Help: "Total number of accepted submissions on the push port.",
		}),
		Pops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workqueue_pops_total",
			Help: "Total number of accepted submissions on the pop port.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workqueue_deliveries_total",
			Help: "Total number of items handed to the consumer.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workqueue_rejections_total",
			Help: "Total number of rejections, labelled by reason.",
		}, []string{"reason"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workqueue_retry_notifications_total",
			Help: "Total number of retry notifications, labelled by port.",
		}, []string{"port"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workqueue_depth",
			Help: "Current number of items in storage.",
		}),
	}

	reg.MustRegister(
		i.Pushes,
		i.Pops,
		i.Deliveries,
		i.Rejections,
		i.Retries,
		i.QueueDepth,
	)

	return i
}

func (i *Instruments) recordAccept(dir Direction) {
	if i == nil {
		return
	}
	if dir == DirPush {
		i.Pushes.Inc()
	} else {
		i.Pops.Inc()
	}
}

func (i *Instruments) recordRejection(reason string) {
	if i == nil {
		return
	}
	i.Rejections.WithLabelValues(reason).Inc()
}

func (i *Instruments) recordRetry(dir Direction) {
	if i == nil {
		return
	}
	i.Retries.WithLabelValues(dir.String()).Inc()
}

func (i *Instruments) recordDelivery() {
	if i == nil {
		return
	}
	i.Deliveries.Inc()
}

func (i *Instruments) setDepth(depth int) {
	if i == nil {
		return
	}
	i.QueueDepth.Set(float64(depth))
}
