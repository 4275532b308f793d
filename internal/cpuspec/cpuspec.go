// Package cpuspec reports the host CPU properties the runtime models the
// DSP on: the clock the cycle counters are derived from and the number of
// cores that can run a scheduler each.
package cpuspec

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// FallbackHz is used when the CPU does not report its clock.
const FallbackHz uint64 = 1_000_000_000

// CPUSpec contains information about the host CPU.
type CPUSpec struct {
	BrandName     string
	Hz            uint64
	LogicalCores  int
	PhysicalCores int
}

// GetCPUSpec returns the detected CPU specification.
func GetCPUSpec() CPUSpec {
	spec := CPUSpec{
		BrandName:     cpuid.CPU.BrandName,
		LogicalCores:  cpuid.CPU.LogicalCores,
		PhysicalCores: cpuid.CPU.PhysicalCores,
	}
	if cpuid.CPU.Hz > 0 {
		spec.Hz = uint64(cpuid.CPU.Hz)
	}
	return spec
}

// ClockHz is the cycle clock for perf accounting: override when non-zero,
// else the detected clock, else FallbackHz.
func (c CPUSpec) ClockHz(override uint64) uint64 {
	switch {
	case override > 0:
		return override
	case c.Hz > 0:
		return c.Hz
	default:
		return FallbackHz
	}
}

// AvailableCores is the number of cores a scheduler goroutine can be
// pinned to without oversubscribing the host.
func (c CPUSpec) AvailableCores() int {
	// VMs may report more logical cores than the process can use
	n := runtime.NumCPU()
	if c.LogicalCores > 0 && c.LogicalCores < n {
		return c.LogicalCores
	}
	return n
}
