// Package timing provides the monotonic cycle clock used by the session
// management retry engine and the event loop deadline helpers.
//
// The clock is expressed in "cycles" of a calibrated frequency rather than
// wall time so that hot-path timestamping stays a single counter read. The
// retry sweep only needs millisecond-grade accuracy.
package timing

import "time"

// Clock is a monotonic cycle counter with a known frequency.
type Clock interface {
	// Cycles returns the current value of the monotonic counter.
	Cycles() uint64

	// FreqGHz returns the counter frequency in gigahertz (cycles per
	// nanosecond).
	FreqGHz() float64
}

// ToUsec converts a cycle delta to microseconds at the given frequency.
func ToUsec(cycles uint64, freqGHz float64) float64 {
	return float64(cycles) / (freqGHz * 1000)
}

// ToMsec converts a cycle delta to milliseconds at the given frequency.
func ToMsec(cycles uint64, freqGHz float64) float64 {
	return ToUsec(cycles, freqGHz) / 1000
}

// ToSec converts a cycle delta to seconds at the given frequency.
func ToSec(cycles uint64, freqGHz float64) float64 {
	return ToUsec(cycles, freqGHz) / 1e6
}

// monotonicClock counts nanoseconds since process start using the runtime's
// monotonic reading, so its frequency is exactly 1 GHz.
type monotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns the default Clock implementation.
func NewMonotonicClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Cycles() uint64 {
	return uint64(time.Since(c.start))
}

func (c *monotonicClock) FreqGHz() float64 { return 1.0 }

// ManualClock is a Clock whose counter only moves when told to. Tests use it
// to drive retry and timeout sweeps deterministically.
type ManualClock struct {
	now uint64
}

// NewManualClock returns a ManualClock starting at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Cycles() uint64 { return c.now }

func (c *ManualClock) FreqGHz() float64 { return 1.0 }

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.now += uint64(d)
}
