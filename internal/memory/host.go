package memory

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// minZoneBytes keeps auto-sized zones usable on small hosts.
const minZoneBytes = 64 << 10

// ConfigFromHost sizes the zones from a fraction of the host's available
// memory. The runtime zone gets half of the share, shared and DMA a
// quarter each.
func ConfigFromHost(fraction float64) (Config, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Config{}, fmt.Errorf("failed to read host memory: %w", err)
	}
	return configFromAvailable(vm.Available, fraction), nil
}

func configFromAvailable(available uint64, fraction float64) Config {
	share := uint64(float64(available) * fraction)
	cfg := Config{
		RuntimeBytes: share / 2,
		SharedBytes:  share / 4,
		DMABytes:     share / 4,
	}
	cfg.RuntimeBytes = max(cfg.RuntimeBytes, minZoneBytes)
	cfg.SharedBytes = max(cfg.SharedBytes, minZoneBytes)
	cfg.DMABytes = max(cfg.DMABytes, minZoneBytes)
	return cfg
}
