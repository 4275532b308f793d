package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/dspcore/internal/cache"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/memory"
	"github.com/tphakala/dspcore/internal/notifier"
	"github.com/tphakala/dspcore/internal/sched"
)

// DataplaneMetrics contains Prometheus metrics for buffers, components,
// schedulers and the heap.
type DataplaneMetrics struct {
	registry *prometheus.Registry

	// Buffer traffic, fed from bus records
	bufferBytesTotal  *prometheus.CounterVec
	bufferEventsTotal *prometheus.CounterVec

	// Component lifecycle and load
	componentState       *prometheus.GaugeVec
	componentTransitions *prometheus.CounterVec
	componentKCPS        *prometheus.GaugeVec
	componentIterations  *prometheus.GaugeVec

	// Scheduler counters, sampled
	schedulerTicks  *prometheus.GaugeVec
	schedulerCopies *prometheus.GaugeVec
	schedulerFaults *prometheus.GaugeVec

	// Heap zones, sampled
	heapBytes    *prometheus.GaugeVec
	heapAllocs   *prometheus.GaugeVec
	heapFailures *prometheus.GaugeVec

	// Cache maintenance, sampled
	cacheOps   *prometheus.GaugeVec
	cacheBytes *prometheus.GaugeVec

	// Event bus, sampled
	busRecords *prometheus.GaugeVec
}

// NewDataplaneMetrics creates and registers the dataplane metrics.
func NewDataplaneMetrics(registry *prometheus.Registry) (*DataplaneMetrics, error) {
	m := &DataplaneMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DataplaneMetrics) initMetrics() {
	m.bufferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dspcore_buffer_bytes_total",
			Help: "Bytes produced into or consumed from a buffer",
		},
		[]string{"buffer", "direction"}, // direction: produce, consume
	)

	m.bufferEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dspcore_buffer_events_total",
			Help: "Buffer notifications by event",
		},
		[]string{"buffer", "event"},
	)

	m.componentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_component_state",
			Help: "Current lifecycle state of a component (0 ready, 1 prepare, 2 pre_active, 3 active, 4 paused)",
		},
		[]string{"component"},
	)

	m.componentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dspcore_component_transitions_total",
			Help: "Lifecycle transitions by target state",
		},
		[]string{"component", "state"},
	)

	m.componentKCPS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_component_kcps",
			Help: "Component load in kilocycles per second",
		},
		[]string{"component", "stat"}, // stat: avg, peak
	)

	m.componentIterations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_component_copy_iterations",
			Help: "Copy calls accounted by the performance counters",
		},
		[]string{"component"},
	)

	m.schedulerTicks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_scheduler_ticks",
			Help: "Scheduler ticks run on a core",
		},
		[]string{"core"},
	)

	m.schedulerCopies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_scheduler_copies",
			Help: "Component copies run by a core scheduler",
		},
		[]string{"core"},
	)

	m.schedulerFaults = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_scheduler_faults",
			Help: "Failed component copies by kind",
		},
		[]string{"core", "kind"}, // kind: xrun, error
	)

	m.heapBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_heap_bytes",
			Help: "Heap zone size and usage in bytes",
		},
		[]string{"zone", "stat"}, // stat: capacity, used, peak
	)

	m.heapAllocs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_heap_allocations",
			Help: "Successful allocations served by a heap zone",
		},
		[]string{"zone"},
	)

	m.heapFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_heap_allocation_failures",
			Help: "Allocations a heap zone could not serve",
		},
		[]string{"zone"},
	)

	m.cacheOps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_cache_operations",
			Help: "Cache maintenance operations",
		},
		[]string{"op"}, // op: invalidate, writeback
	)

	m.cacheBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_cache_bytes",
			Help: "Bytes covered by cache maintenance operations",
		},
		[]string{"op"},
	)

	m.busRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dspcore_event_bus_records",
			Help: "Event bus records by outcome",
		},
		[]string{"outcome"}, // outcome: received, processed, dropped, consumer_error
	)
}

// Describe implements the prometheus.Collector interface.
func (m *DataplaneMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.bufferBytesTotal.Describe(ch)
	m.bufferEventsTotal.Describe(ch)
	m.componentState.Describe(ch)
	m.componentTransitions.Describe(ch)
	m.componentKCPS.Describe(ch)
	m.componentIterations.Describe(ch)
	m.schedulerTicks.Describe(ch)
	m.schedulerCopies.Describe(ch)
	m.schedulerFaults.Describe(ch)
	m.heapBytes.Describe(ch)
	m.heapAllocs.Describe(ch)
	m.heapFailures.Describe(ch)
	m.cacheOps.Describe(ch)
	m.cacheBytes.Describe(ch)
	m.busRecords.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DataplaneMetrics) Collect(ch chan<- prometheus.Metric) {
	m.bufferBytesTotal.Collect(ch)
	m.bufferEventsTotal.Collect(ch)
	m.componentState.Collect(ch)
	m.componentTransitions.Collect(ch)
	m.componentKCPS.Collect(ch)
	m.componentIterations.Collect(ch)
	m.schedulerTicks.Collect(ch)
	m.schedulerCopies.Collect(ch)
	m.schedulerFaults.Collect(ch)
	m.heapBytes.Collect(ch)
	m.heapAllocs.Collect(ch)
	m.heapFailures.Collect(ch)
	m.cacheOps.Collect(ch)
	m.cacheBytes.Collect(ch)
	m.busRecords.Collect(ch)
}

// Name implements notifier.Consumer.
func (m *DataplaneMetrics) Name() string { return ConsumerName }

// ProcessRecord implements notifier.Consumer. Records are counted per
// buffer or component name.
func (m *DataplaneMetrics) ProcessRecord(r notifier.Record) error {
	switch r.ID {
	case notifier.BufferProduce:
		m.bufferBytesTotal.WithLabelValues(r.Source, DirectionProduce).Add(float64(r.Amount))
		m.bufferEventsTotal.WithLabelValues(r.Source, r.ID.String()).Inc()
	case notifier.BufferConsume:
		m.bufferBytesTotal.WithLabelValues(r.Source, DirectionConsume).Add(float64(r.Amount))
		m.bufferEventsTotal.WithLabelValues(r.Source, r.ID.String()).Inc()
	case notifier.BufferFree:
		m.bufferEventsTotal.WithLabelValues(r.Source, r.ID.String()).Inc()
	case notifier.ComponentState:
		m.RecordComponentState(r.Source, component.State(r.Value))
	}
	return nil
}

// RecordComponentState records a lifecycle transition of a component.
func (m *DataplaneMetrics) RecordComponentState(name string, to component.State) {
	m.componentState.WithLabelValues(name).Set(float64(to))
	m.componentTransitions.WithLabelValues(name, to.String()).Inc()
}

// UpdateComponentPerf sets the load gauges of a component.
func (m *DataplaneMetrics) UpdateComponentPerf(name string, p component.Perf) {
	m.componentKCPS.WithLabelValues(name, StatAvg).Set(float64(p.AvgKCPS))
	m.componentKCPS.WithLabelValues(name, StatPeak).Set(float64(p.PeakKCPS))
	m.componentIterations.WithLabelValues(name).Set(float64(p.Iterations))
}

// UpdateSchedulerStats sets the counters of the scheduler on core. The
// values are cumulative since the scheduler started.
func (m *DataplaneMetrics) UpdateSchedulerStats(core int, s sched.Stats) {
	label := strconv.Itoa(core)
	m.schedulerTicks.WithLabelValues(label).Set(float64(s.Ticks))
	m.schedulerCopies.WithLabelValues(label).Set(float64(s.Copies))
	m.schedulerFaults.WithLabelValues(label, FaultXrun).Set(float64(s.NoData))
	m.schedulerFaults.WithLabelValues(label, FaultError).Set(float64(s.Errors))
}

// UpdateHeapStats sets the zone gauges from a heap snapshot.
func (m *DataplaneMetrics) UpdateHeapStats(stats []memory.ZoneStats) {
	for _, s := range stats {
		zone := s.Zone.String()
		m.heapBytes.WithLabelValues(zone, StatCapacity).Set(float64(s.Capacity))
		m.heapBytes.WithLabelValues(zone, StatUsed).Set(float64(s.Used))
		m.heapBytes.WithLabelValues(zone, StatPeak).Set(float64(s.Peak))
		m.heapAllocs.WithLabelValues(zone).Set(float64(s.Allocs))
		m.heapFailures.WithLabelValues(zone).Set(float64(s.Failures))
	}
}

// UpdateCacheStats sets the cache maintenance gauges.
func (m *DataplaneMetrics) UpdateCacheStats(s cache.Stats) {
	m.cacheOps.WithLabelValues(OpInvalidate).Set(float64(s.InvalidateOps))
	m.cacheBytes.WithLabelValues(OpInvalidate).Set(float64(s.InvalidateBytes))
	m.cacheOps.WithLabelValues(OpWriteback).Set(float64(s.WritebackOps))
	m.cacheBytes.WithLabelValues(OpWriteback).Set(float64(s.WritebackBytes))
}

// UpdateBusStats sets the event bus gauges.
func (m *DataplaneMetrics) UpdateBusStats(s notifier.BusStats) {
	m.busRecords.WithLabelValues("received").Set(float64(s.RecordsReceived))
	m.busRecords.WithLabelValues("processed").Set(float64(s.RecordsProcessed))
	m.busRecords.WithLabelValues("dropped").Set(float64(s.RecordsDropped))
	m.busRecords.WithLabelValues("consumer_error").Set(float64(s.ConsumerErrors))
}
