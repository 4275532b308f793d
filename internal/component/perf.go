package component

import (
	"math/bits"
	"time"

	"github.com/tphakala/dspcore/internal/cpuspec"
)

// Clock converts wall time to CPU cycles.
type Clock struct {
	hz  uint64
	now func() time.Time
}

// NewClock returns a clock running at hz, or at the detected CPU clock
// when hz is zero.
func NewClock(hz uint64) *Clock {
	return &Clock{hz: cpuspec.GetCPUSpec().ClockHz(hz), now: time.Now}
}

// Hz is the cycle rate.
func (c *Clock) Hz() uint64 { return c.hz }

// Now reads the clock.
func (c *Clock) Now() time.Time { return c.now() }

// CyclesSince is the number of cycles elapsed since start.
func (c *Clock) CyclesSince(start time.Time) uint64 {
	ns := c.now().Sub(start)
	if ns <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(ns), c.hz)
	if hi >= uint64(time.Second) {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, uint64(time.Second))
	return q
}

// emaShift sets the moving average weight: each sample counts 1/16.
const emaShift = 4

// Perf is the cycle accounting of one device.
type Perf struct {
	Iterations  uint64
	TotalCycles uint64
	AvgKCPS     uint64
	PeakKCPS    uint64
	PeakCycles  uint64
}

// perfScale converts per-call cycles to kilocycles per second: a call that
// moves chunkBytes of a stream carrying oneMsBytes per millisecond runs
// oneMsBytes/chunkBytes times per millisecond, and cycles per millisecond
// is kcps.
type perfScale struct {
	oneMsBytes uint32
	chunkBytes uint32
}

func (s perfScale) kcps(cycles uint64) uint64 {
	if s.oneMsBytes == 0 || s.chunkBytes == 0 {
		return cycles
	}
	return cycles * uint64(s.oneMsBytes) / uint64(s.chunkBytes)
}

func (p *Perf) update(cycles uint64, scale perfScale) {
	kcps := scale.kcps(cycles)

	if p.Iterations == 0 {
		p.AvgKCPS = kcps
	} else if kcps >= p.AvgKCPS {
		p.AvgKCPS += (kcps - p.AvgKCPS) >> emaShift
	} else {
		p.AvgKCPS -= (p.AvgKCPS - kcps) >> emaShift
	}

	p.Iterations++
	p.TotalCycles += cycles
	p.PeakKCPS = max(p.PeakKCPS, kcps)
	p.PeakCycles = max(p.PeakCycles, cycles)
}

// Perf returns the device's counters.
func (d *Device) Perf() Perf { return d.perf }

// ResetPerf clears the counters.
func (d *Device) ResetPerf() { d.perf = Perf{} }

// SetPerfScale sets the normalisation of kcps: the stream's bytes per
// millisecond and the bytes one copy call moves. Until it is set every
// call is taken to cover one millisecond.
func (d *Device) SetPerfScale(oneMsBytes, chunkBytes uint32) {
	d.perfScale = perfScale{oneMsBytes: oneMsBytes, chunkBytes: chunkBytes}
}
