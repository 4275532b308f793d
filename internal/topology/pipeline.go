package topology

import (
	"slices"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// downstreamFirst reports whether cmd walks a pipeline from its sinks
// back to its sources. Stopping consumers first keeps producers from
// overrunning them.
func downstreamFirst(cmd component.Trigger) bool {
	switch cmd {
	case component.TriggerStop, component.TriggerPause, component.TriggerReset, component.TriggerXrun:
		return true
	default:
		return false
	}
}

func (p *Pipeline) order(cmd component.Trigger) []*component.Device {
	if !downstreamFirst(cmd) {
		return p.Components
	}
	out := slices.Clone(p.Components)
	slices.Reverse(out)
	return out
}

// Prepare configures and prepares pipeline id. Host params, when given,
// are offered to every component first; then each component is prepared
// and moved to PREPARE, in topology order.
func (g *Graph) Prepare(id uint32, params *audiostream.Params) error {
	p, err := g.Pipeline(id)
	if err != nil {
		return err
	}

	if params != nil {
		for _, dev := range p.Components {
			if err := dev.Params(params); err != nil {
				return g.pipelineError(p, dev, "params", err)
			}
		}
	}
	for _, dev := range p.Components {
		if err := dev.Prepare(); err != nil {
			return g.pipelineError(p, dev, "prepare", err)
		}
	}
	return g.Trigger(id, component.TriggerPrepare)
}

// Trigger sends cmd to every component of pipeline id. Start-type
// commands run sources first, stop-type commands sinks first. The walk
// stops at the first component that rejects cmd.
func (g *Graph) Trigger(id uint32, cmd component.Trigger) error {
	p, err := g.Pipeline(id)
	if err != nil {
		return err
	}

	for _, dev := range p.order(cmd) {
		if _, err := dev.Trigger(cmd); err != nil {
			return g.pipelineError(p, dev, cmd.String(), err)
		}
	}
	g.log.Debug("pipeline triggered",
		logger.Uint32("pipeline_id", id),
		logger.String("trigger", cmd.String()))
	return nil
}

// Reset returns pipeline id to READY: every component is reset, driver
// resources are released, and the pipeline's buffers are emptied and
// opened for new params.
func (g *Graph) Reset(id uint32) error {
	p, err := g.Pipeline(id)
	if err != nil {
		return err
	}

	var errs []error
	for _, dev := range p.order(component.TriggerReset) {
		if _, err := dev.Trigger(component.TriggerReset); err != nil {
			errs = append(errs, g.pipelineError(p, dev, "reset", err))
		}
		if err := dev.Reset(); err != nil {
			errs = append(errs, g.pipelineError(p, dev, "driver reset", err))
		}
	}
	for _, b := range p.Buffers {
		b.Reset()
		b.ClearParams()
	}
	return errors.Join(errs...)
}

// Start prepares and starts every pipeline in ID order.
func (g *Graph) Start(params *audiostream.Params) error {
	for _, p := range g.Pipelines() {
		if err := g.Prepare(p.ID, params); err != nil {
			return err
		}
	}
	for _, p := range g.Pipelines() {
		if err := g.Trigger(p.ID, component.TriggerStart); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops and resets every pipeline, in reverse ID order.
func (g *Graph) Stop() error {
	pipelines := g.Pipelines()
	slices.Reverse(pipelines)

	var errs []error
	for _, p := range pipelines {
		for _, dev := range p.order(component.TriggerStop) {
			if dev.State() != component.StateActive {
				continue
			}
			if _, err := dev.Trigger(component.TriggerStop); err != nil {
				errs = append(errs, g.pipelineError(p, dev, "stop", err))
			}
		}
		if err := g.Reset(p.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Graph) pipelineError(p *Pipeline, dev *component.Device, op string, err error) error {
	g.log.Error("pipeline operation failed",
		logger.Uint32("pipeline_id", p.ID),
		logger.Uint32("comp_id", dev.ID()),
		logger.String("operation", op),
		logger.Error(err))
	return errors.New(err).
		Component(ComponentTopology).
		Category(errors.CategoryTopology).
		Context("pipeline_id", p.ID).
		Context("comp_id", dev.ID()).
		Context("operation", op).
		Build()
}
