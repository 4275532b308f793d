// Package sched drives the data plane: one low-latency scheduler per core
// calls Copy on the active components of that core once per period.
package sched

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/irq"
	"github.com/tphakala/dspcore/internal/logger"
)

// ComponentSched is the error component name for this package.
const ComponentSched = "sched"

// DefaultWarnInterval is how long a component's repeated copy failures
// stay silent after the first one is logged.
const DefaultWarnInterval = 5 * time.Second

// Stats counts scheduler activity.
type Stats struct {
	Ticks  uint64
	Copies uint64
	// NoData counts copies that failed for lack of data or space.
	NoData uint64
	Errors uint64
}

// LL is the low-latency scheduler of one core. Tick runs with the core's
// exclusion held, so Add and Remove are safe from any goroutine.
type LL struct {
	core  int
	guard *irq.Guard

	// devs is only touched with the core exclusion held
	devs []*component.Device

	// warned suppresses repeated warnings per component
	warned *gocache.Cache

	ticks  atomic.Uint64
	copies atomic.Uint64
	noData atomic.Uint64
	errs   atomic.Uint64

	log logger.Logger
}

// New returns the scheduler of core. warnInterval <= 0 selects
// DefaultWarnInterval.
func New(core int, guard *irq.Guard, warnInterval time.Duration, log logger.Logger) *LL {
	if warnInterval <= 0 {
		warnInterval = DefaultWarnInterval
	}
	if log == nil {
		log = logger.Global().Module(ComponentSched)
	}
	// no janitor goroutine: expired entries are replaced on the next failure
	return &LL{
		core:   core,
		guard:  guard,
		warned: gocache.New(warnInterval, 0),
		log:    log.With(logger.Int("core", core)),
	}
}

// Core is the core this scheduler runs.
func (s *LL) Core() int { return s.core }

// Add appends dev to the tick order. LL devices must belong to this core.
func (s *LL) Add(dev *component.Device) error {
	if dev.Domain() == component.DomainLL && dev.Core() != s.core {
		return errors.Newf("component %s is on core %d, scheduler runs core %d", dev, dev.Core(), s.core).
			Component(ComponentSched).
			Category(errors.CategoryInvalidParams).
			Build()
	}

	held := s.guard.Disable(s.core)
	defer held.Enable()

	if slices.Contains(s.devs, dev) {
		return errors.Newf("component %s already scheduled", dev).
			Component(ComponentSched).
			Category(errors.CategoryConflict).
			Build()
	}
	s.devs = append(s.devs, dev)
	return nil
}

// Remove takes dev out of the tick order.
func (s *LL) Remove(dev *component.Device) error {
	held := s.guard.Disable(s.core)
	defer held.Enable()

	i := slices.Index(s.devs, dev)
	if i < 0 {
		return errors.Newf("component %s is not scheduled", dev).
			Component(ComponentSched).
			Category(errors.CategoryNotFound).
			Build()
	}
	s.devs = slices.Delete(s.devs, i, i+1)
	s.warned.Delete(dev.String())
	return nil
}

// Len is the number of scheduled components.
func (s *LL) Len() int {
	held := s.guard.Disable(s.core)
	defer held.Enable()
	return len(s.devs)
}

// Tick runs one period: Copy on every ACTIVE component, in the order they
// were added. Copy failures are counted and logged, and do not stop the
// tick.
func (s *LL) Tick() {
	held := s.guard.Disable(s.core)
	defer held.Enable()

	s.ticks.Add(1)
	for _, dev := range s.devs {
		if dev.State() != component.StateActive {
			continue
		}
		s.copies.Add(1)
		if err := dev.Copy(s.core); err != nil {
			s.report(dev, err)
		}
	}
}

func (s *LL) report(dev *component.Device, err error) {
	noData := errors.Is(err, buffer.ErrNoData)
	if noData {
		s.noData.Add(1)
	} else {
		s.errs.Add(1)
	}

	key := dev.String()
	if _, found := s.warned.Get(key); found {
		return
	}
	s.warned.SetDefault(key, struct{}{})

	if noData {
		s.log.Warn("component xrun",
			logger.String("component", key),
			logger.Error(err))
		return
	}
	s.log.Error("component copy failed",
		logger.String("component", key),
		logger.Error(err))
}

// Run ticks every period until ctx is done or maxTicks ticks have run;
// maxTicks 0 means no limit. It returns nil in both cases.
func (s *LL) Run(ctx context.Context, period time.Duration, maxTicks uint64) error {
	return run(ctx, period, maxTicks, s.log, s.Tick)
}

// RunLockstep ticks every scheduler in scheds from one loop, in slice
// order, so no two cores ever copy at the same time. Pipelines whose
// buffers cross cores run this way.
func RunLockstep(ctx context.Context, period time.Duration, maxTicks uint64, scheds ...*LL) error {
	log := logger.Global().Module(ComponentSched)
	if len(scheds) > 0 {
		log = scheds[0].log
	}
	return run(ctx, period, maxTicks, log.With(logger.Int("cores", len(scheds))), func() {
		for _, s := range scheds {
			s.Tick()
		}
	})
}

func run(ctx context.Context, period time.Duration, maxTicks uint64, log logger.Logger, tick func()) error {
	if period <= 0 {
		return errors.Newf("scheduler period must be positive, got %s", period).
			Component(ComponentSched).
			Category(errors.CategoryInvalidParams).
			Build()
	}

	log.Info("scheduler started",
		logger.Duration("period", period),
		logger.Uint64("max_ticks", maxTicks))

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var n uint64
	for maxTicks == 0 || n < maxTicks {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped", logger.Uint64("ticks", n))
			return nil
		case <-ticker.C:
			tick()
			n++
		}
	}
	log.Info("scheduler finished", logger.Uint64("ticks", n))
	return nil
}

// Stats returns the counters.
func (s *LL) Stats() Stats {
	return Stats{
		Ticks:  s.ticks.Load(),
		Copies: s.copies.Load(),
		NoData: s.noData.Load(),
		Errors: s.errs.Load(),
	}
}
