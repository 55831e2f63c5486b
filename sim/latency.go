package sim

import "math/rand"

// TimingModel computes the latency applied to each accepted item: the number
// of ticks between acceptance and release. Implementations must be
// deterministic given identical configuration and seed, so simulation traces
// are reproducible.
type TimingModel interface {
	// Latency returns the ticks the given item occupies the acceptance window.
	Latency(item *WorkItem) int64
}

// FixedLatency applies a configured base latency, optionally extended by a
// bandwidth regulation term proportional to the item size. With a zero
// bandwidth term every item sees exactly the base latency.
type FixedLatency struct {
	base         int64
	ticksPerByte float64
}

// NewFixedLatency builds a FixedLatency model. ticksPerByte of zero disables
// bandwidth regulation.
func NewFixedLatency(base int64, ticksPerByte float64) *FixedLatency {
	return &FixedLatency{base: base, ticksPerByte: ticksPerByte}
}

func (m *FixedLatency) Latency(item *WorkItem) int64 {
	lat := m.base
	if m.ticksPerByte > 0 && item != nil {
		lat += int64(m.ticksPerByte * float64(item.Size))
	}
	return lat
}

// JitterLatency perturbs a FixedLatency by a bounded jitter term drawn
// uniformly from [0, jitter]. The draw comes from the timing subsystem of a
// partitioned RNG, so the perturbation sequence is a pure function of the
// seed and the order of acceptances.
type JitterLatency struct {
	fixed  *FixedLatency
	jitter int64
	rng    *rand.Rand
}

// NewJitterLatency wraps a FixedLatency with a jitter bound. A jitter of
// zero degenerates to the fixed model.
func NewJitterLatency(fixed *FixedLatency, jitter int64, rng *rand.Rand) *JitterLatency {
	return &JitterLatency{fixed: fixed, jitter: jitter, rng: rng}
}

func (m *JitterLatency) Latency(item *WorkItem) int64 {
	lat := m.fixed.Latency(item)
	if m.jitter > 0 {
		lat += m.rng.Int63n(m.jitter + 1)
	}
	return lat
}

// NewTimingModel builds the timing model described by the configuration,
// using the timing subsystem of rng when jitter is enabled.
func NewTimingModel(cfg Config, rng *PartitionedRNG) TimingModel {
	fixed := NewFixedLatency(cfg.BaseLatency, cfg.BandwidthTicksPerByte)
	if cfg.LatencyJitter > 0 {
		return NewJitterLatency(fixed, cfg.LatencyJitter, rng.ForSubsystem(SubsystemTiming))
	}
	return fixed
}
