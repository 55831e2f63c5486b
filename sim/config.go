package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AddrRange is the static address descriptor a port advertises as its
// capability. A zero Size means the port advertises no range.
type AddrRange struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// Contains reports whether addr falls inside the range.
func (r AddrRange) Contains(addr uint64) bool {
	return r.Size > 0 && addr >= r.Base && addr-r.Base < r.Size
}

// Overlaps reports whether two ranges share at least one address.
func (r AddrRange) Overlaps(o AddrRange) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	return r.Base < o.Base+o.Size && o.Base < r.Base+r.Size
}

// Config holds the construction-time parameters of the work queue.
// Invalid values are rejected by Validate before any simulated time advances.
type Config struct {
	// Capacity is the number of items storage may hold. Must be > 0.
	Capacity int `yaml:"capacity"`

	// BaseLatency is the tick count from acceptance of a request until its
	// release. Must be >= 0.
	BaseLatency int64 `yaml:"base_latency"`

	// LatencyJitter bounds an optional uniform perturbation added to the
	// base latency. Zero (the default) disables jitter.
	LatencyJitter int64 `yaml:"latency_jitter"`

	// BandwidthTicksPerByte adds a size-proportional term to the latency,
	// regulating the acceptance rate. Zero (the default) disables it.
	BandwidthTicksPerByte float64 `yaml:"bandwidth_ticks_per_byte"`

	// PopPortAddr and PushPortAddr are the address descriptors the two
	// ports advertise via Capabilities.
	PopPortAddr  AddrRange `yaml:"pop_port_addr"`
	PushPortAddr AddrRange `yaml:"push_port_addr"`

	// Seed drives every RNG subsystem; identical seeds and configuration
	// produce identical traces.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns a valid baseline queue configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:     8,
		BaseLatency:  10,
		PopPortAddr:  AddrRange{Base: 0x1000, Size: 0x40},
		PushPortAddr: AddrRange{Base: 0x2000, Size: 0x40},
		Seed:         42,
	}
}

// Validate reports the first invalid field as an error wrapping
// ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.BaseLatency < 0 {
		return fmt.Errorf("%w: base latency must be >= 0, got %d", ErrInvalidConfig, c.BaseLatency)
	}
	if c.LatencyJitter < 0 {
		return fmt.Errorf("%w: latency jitter must be >= 0, got %d", ErrInvalidConfig, c.LatencyJitter)
	}
	if c.BandwidthTicksPerByte < 0 {
		return fmt.Errorf("%w: bandwidth must be >= 0, got %f", ErrInvalidConfig, c.BandwidthTicksPerByte)
	}
	if c.PopPortAddr.Overlaps(c.PushPortAddr) {
		return fmt.Errorf("%w: pop and push port address ranges overlap", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads a yaml configuration file. Unknown fields are rejected so
// typos surface at load time rather than as silent defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
