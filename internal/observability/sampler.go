package observability

import (
	"context"
	"time"

	"github.com/tphakala/dspcore/internal/cache"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/irq"
	"github.com/tphakala/dspcore/internal/memory"
	"github.com/tphakala/dspcore/internal/notifier"
	"github.com/tphakala/dspcore/internal/observability/metrics"
	"github.com/tphakala/dspcore/internal/sched"
)

// Sources are the runtime objects a Sampler reads. Nil fields are skipped.
type Sources struct {
	Heap       *memory.Heap
	Cache      *cache.Counting
	Bus        *notifier.Bus
	Schedulers []*sched.LL
	// Components lists the devices whose perf counters are exported.
	// Guard is required with it: counters are read with the device's
	// core held.
	Components func() []*component.Device
	Guard      *irq.Guard
}

// Sampler copies runtime snapshots into the dataplane gauges.
type Sampler struct {
	m   *metrics.DataplaneMetrics
	src Sources
}

// NewSampler creates a sampler feeding m.
func NewSampler(m *metrics.DataplaneMetrics, src Sources) *Sampler {
	return &Sampler{m: m, src: src}
}

// Sample takes one snapshot of every source.
func (s *Sampler) Sample() {
	if s.src.Heap != nil {
		s.m.UpdateHeapStats(s.src.Heap.Stats())
	}
	if s.src.Cache != nil {
		s.m.UpdateCacheStats(s.src.Cache.Stats())
	}
	if s.src.Bus != nil {
		s.m.UpdateBusStats(s.src.Bus.Stats())
	}
	for _, ll := range s.src.Schedulers {
		s.m.UpdateSchedulerStats(ll.Core(), ll.Stats())
	}
	if s.src.Components != nil && s.src.Guard != nil {
		for _, dev := range s.src.Components() {
			held := s.src.Guard.Disable(dev.Core())
			perf := dev.Perf()
			held.Enable()
			s.m.UpdateComponentPerf(dev.String(), perf)
		}
	}
}

// Run samples every interval until ctx is cancelled, and once more on
// the way out so the final counters are exported.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = metrics.DefaultSampleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Sample()
			return nil
		case <-ticker.C:
			s.Sample()
		}
	}
}
