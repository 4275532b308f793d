// Package dsp assembles the data plane from settings: the heap, one
// scheduler per core, the event plumbing and a topology, and runs it.
package dsp

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/cache"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/drivers"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/irq"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/memory"
	"github.com/tphakala/dspcore/internal/notifier"
	"github.com/tphakala/dspcore/internal/observability"
	"github.com/tphakala/dspcore/internal/sched"
	"github.com/tphakala/dspcore/internal/topology"
	"github.com/tphakala/dspcore/internal/trace"
)

// ComponentDSP is the error component name for this package.
const ComponentDSP = "dsp"

// busShutdownTimeout bounds how long Close waits for queued records.
const busShutdownTimeout = 2 * time.Second

// Runtime owns every data-plane object of one process.
type Runtime struct {
	settings *conf.Settings
	log      logger.Logger

	heap     *memory.Heap
	cache    *cache.Counting
	guard    *irq.Guard
	notifier *notifier.Notifier
	bus      *notifier.Bus
	registry *component.Registry
	clock    *component.Clock
	policy   component.AlreadySetPolicy
	scheds   []*sched.LL

	recorder *trace.Recorder
	metrics  *observability.Metrics

	graph *topology.Graph
}

// New creates a runtime with no topology loaded.
func New(settings *conf.Settings, log logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.Global().Module(ComponentDSP)
	}
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, err
	}

	heapCfg, err := heapConfig(&settings.Memory)
	if err != nil {
		return nil, err
	}
	policy, err := component.ParseAlreadySetPolicy(settings.DSP.AlreadySetPolicy())
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		settings: settings,
		log:      log,
		heap:     memory.NewHeap(heapCfg),
		cache:    &cache.Counting{},
		guard:    irq.New(settings.DSP.Cores),
		notifier: notifier.New(log),
		bus:      notifier.NewBus(nil, log),
		registry: component.NewRegistry(log),
		clock:    component.NewClock(settings.DSP.CPUHz),
		policy:   policy,
	}

	r.registry.Init()
	if err := drivers.Register(r.registry); err != nil {
		return nil, r.closeWith(err)
	}

	for core := range settings.DSP.Cores {
		r.scheds = append(r.scheds, sched.New(core, r.guard, sched.DefaultWarnInterval, log))
	}

	if err := r.initConsumers(); err != nil {
		return nil, r.closeWith(err)
	}

	log.Info("runtime created",
		logger.Int("cores", settings.DSP.Cores),
		logger.String("already_set_policy", policy.String()),
		logger.Uint64("runtime_bytes", heapCfg.RuntimeBytes),
		logger.Uint64("shared_bytes", heapCfg.SharedBytes),
		logger.Uint64("dma_bytes", heapCfg.DMABytes))
	return r, nil
}

// heapConfig sizes the heap zones from settings, or from host memory when
// auto sizing is on.
func heapConfig(m *conf.MemorySettings) (memory.Config, error) {
	if m.Auto {
		cfg, err := memory.ConfigFromHost(m.AutoFraction)
		if err != nil {
			return memory.Config{}, errors.New(err).
				Component(ComponentDSP).
				Category(errors.CategorySystem).
				Build()
		}
		return cfg, nil
	}
	return memory.Config{
		RuntimeBytes: m.RuntimeBytes,
		SharedBytes:  m.SharedBytes,
		DMABytes:     m.DMABytes,
	}, nil
}

// initConsumers attaches the trace recorder and metrics to the bus and
// forwards every data-plane event to it once a consumer exists.
func (r *Runtime) initConsumers() error {
	if r.settings.Trace.Enabled {
		r.recorder = trace.NewRecorder(r.settings.Trace.Capacity, r.log)
		if err := r.bus.RegisterConsumer(r.recorder); err != nil {
			return err
		}
	}
	if r.settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return err
		}
		if err := r.bus.RegisterConsumer(m.Dataplane); err != nil {
			return err
		}
		r.metrics = m
	}
	if r.recorder == nil && r.metrics == nil {
		return nil
	}
	return r.bus.Forward(r.notifier, notifier.Events()...)
}

// Registry is the driver registry topologies are built against.
func (r *Runtime) Registry() *component.Registry { return r.registry }

// Heap is the allocator every buffer is taken from.
func (r *Runtime) Heap() *memory.Heap { return r.heap }

// Graph is the loaded topology, nil before Load.
func (r *Runtime) Graph() *topology.Graph { return r.graph }

// Recorder is the trace recorder, nil when tracing is off.
func (r *Runtime) Recorder() *trace.Recorder { return r.recorder }

// Metrics are the Prometheus collectors, nil when metrics are off.
func (r *Runtime) Metrics() *observability.Metrics { return r.metrics }

// Schedulers returns the per-core schedulers, indexed by core.
func (r *Runtime) Schedulers() []*sched.LL { return r.scheds }

// BusStats reports the event bus counters.
func (r *Runtime) BusStats() notifier.BusStats { return r.bus.Stats() }

// Load builds doc and hands every component to the scheduler of its
// core. Only one topology may be loaded at a time.
func (r *Runtime) Load(doc *topology.Document) error {
	if r.graph != nil {
		return errors.Newf("topology %s already loaded", r.graph.Name()).
			Component(ComponentDSP).
			Category(errors.CategoryConflict).
			Build()
	}

	g, err := topology.Build(doc, topology.Deps{
		Registry: r.registry,
		BufferEnv: &buffer.Env{
			Heap:     r.heap,
			Cache:    r.cache,
			Notifier: r.notifier,
			Log:      r.log,
		},
		ComponentEnv: &component.Env{
			Notifier:     r.notifier,
			Clock:        r.clock,
			Policy:       r.policy,
			PerfCounters: r.settings.DSP.PerfCounters,
			Log:          r.log,
		},
		Guard: r.guard,
		Log:   r.log,
	})
	if err != nil {
		return err
	}

	for _, dev := range g.Components() {
		if err := r.scheds[dev.Core()].Add(dev); err != nil {
			r.unload(g)
			return err
		}
	}
	r.graph = g
	return nil
}

func (r *Runtime) unload(g *topology.Graph) {
	for _, dev := range g.Components() {
		_ = r.scheds[dev.Core()].Remove(dev)
	}
	g.Teardown()
}

// Period is the scheduler tick period.
func (r *Runtime) Period() time.Duration {
	return time.Duration(r.settings.DSP.PeriodUS) * time.Microsecond
}

// Run starts every pipeline with params, ticks the schedulers until ctx is
// cancelled or periods ticks have run (0 runs until cancelled), then stops
// the pipelines. The metrics endpoint and sampler, when enabled, run for
// the same span.
func (r *Runtime) Run(ctx context.Context, params *audiostream.Params, periods uint64) error {
	if r.graph == nil {
		return errors.Newf("no topology loaded").
			Component(ComponentDSP).
			Category(errors.CategoryInvalidState).
			Build()
	}
	if err := r.graph.Start(params); err != nil {
		return errors.Join(err, r.graph.Stop())
	}
	r.scalePerf()

	auxCtx, stopAux := context.WithCancel(ctx)
	defer stopAux()
	aux, auxCtx := errgroup.WithContext(auxCtx)
	if err := r.startObservability(auxCtx, aux); err != nil {
		stopAux()
		return errors.Join(err, aux.Wait(), r.graph.Stop())
	}

	period := r.Period()
	ticking, tickCtx := errgroup.WithContext(auxCtx)
	if r.crossCore() {
		r.log.Info("topology shares buffers across cores, ticking cores in lockstep")
		ticking.Go(func() error {
			return sched.RunLockstep(tickCtx, period, periods, r.scheds...)
		})
	} else {
		for _, ll := range r.scheds {
			ticking.Go(func() error {
				return ll.Run(tickCtx, period, periods)
			})
		}
	}

	runErr := ticking.Wait()
	stopAux()
	auxErr := aux.Wait()
	stopErr := r.graph.Stop()

	r.log.Info("runtime stopped", logger.Any("schedulers", r.schedStats()))
	return errors.Join(runErr, auxErr, stopErr)
}

// crossCore reports whether any buffer of the loaded topology is shared
// between cores. Stream cursors carry no cross-core ordering of their
// own, so such topologies must not tick cores concurrently.
func (r *Runtime) crossCore() bool {
	for _, b := range r.graph.Buffers() {
		if b.Shared() {
			return true
		}
	}
	return false
}

// startObservability launches the metrics endpoint and sampler on g.
func (r *Runtime) startObservability(ctx context.Context, g *errgroup.Group) error {
	if r.metrics == nil {
		return nil
	}
	endpoint, err := observability.NewEndpoint(r.settings, r.metrics)
	if err != nil {
		return err
	}
	sampler := r.Sampler()
	g.Go(func() error { return endpoint.Run(ctx) })
	g.Go(func() error { return sampler.Run(ctx, 0) })
	return nil
}

// Sampler returns a sampler over this runtime's sources, or nil when
// metrics are off.
func (r *Runtime) Sampler() *observability.Sampler {
	if r.metrics == nil {
		return nil
	}
	src := observability.Sources{
		Heap:       r.heap,
		Cache:      r.cache,
		Bus:        r.bus,
		Schedulers: r.scheds,
		Guard:      r.guard,
	}
	if g := r.graph; g != nil {
		src.Components = g.Components
	}
	return observability.NewSampler(r.metrics.Dataplane, src)
}

// scalePerf normalises each component's perf counters to the stream it
// produces into: one period of that stream is one copy call.
func (r *Runtime) scalePerf() {
	periodUS := uint64(r.settings.DSP.PeriodUS)
	for _, dev := range r.graph.Components() {
		bufs := dev.Sinks()
		if len(bufs) == 0 {
			bufs = dev.Sources()
		}
		if len(bufs) == 0 {
			continue
		}
		s := bufs[0].Stream()
		oneMs := uint64(s.FrameBytes()) * uint64(s.Rate()) / 1000
		if oneMs == 0 {
			continue
		}
		held := r.guard.Disable(dev.Core())
		dev.SetPerfScale(uint32(oneMs), uint32(oneMs*periodUS/1000))
		held.Enable()
	}
}

func (r *Runtime) schedStats() map[int]sched.Stats {
	out := make(map[int]sched.Stats, len(r.scheds))
	for _, ll := range r.scheds {
		out[ll.Core()] = ll.Stats()
	}
	return out
}

// DumpTrace writes the buffered trace to w. It is a no-op when tracing is
// off.
func (r *Runtime) DumpTrace(w io.Writer) error {
	if r.recorder == nil {
		return nil
	}
	return r.recorder.Dump(w)
}

// Close tears the topology down and stops the event bus. Heap memory still
// in use afterwards is reported as a leak.
func (r *Runtime) Close() error {
	return r.closeWith(nil)
}

func (r *Runtime) closeWith(cause error) error {
	if r.graph != nil {
		r.unload(r.graph)
		r.graph = nil
	}
	err := r.bus.Shutdown(busShutdownTimeout)

	for _, s := range r.heap.Stats() {
		if s.Used > 0 {
			r.log.Warn("heap memory still in use after teardown",
				logger.String("zone", s.Zone.String()),
				logger.Uint64("bytes", s.Used))
		}
	}
	return errors.Join(cause, err)
}
