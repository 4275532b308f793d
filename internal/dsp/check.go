package dsp

import (
	"fmt"

	"github.com/tphakala/dspcore/internal/buildinfo"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/drivers"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/topology"
)

// Check validates settings and doc together without allocating anything.
// Problems that keep the topology from building are errors; a heap budget
// smaller than the declared buffers is only a warning, since min_size
// buffers may still fit.
func Check(settings *conf.Settings, doc *topology.Document) *buildinfo.ValidationResult {
	res := buildinfo.NewValidationResult()

	if err := conf.ValidateSettings(settings); err != nil {
		addErrors(res, err)
		return res
	}

	reg := component.NewRegistry(logger.NewDiscard())
	reg.Init()
	if err := drivers.Register(reg); err != nil {
		res.AddError(err.Error())
		return res
	}
	if err := doc.Validate(settings.DSP.Cores, reg); err != nil {
		addErrors(res, err)
	}

	connected := make(map[uint32]bool, len(doc.Components))
	for _, c := range doc.Connections {
		connected[c.From] = true
		connected[c.To] = true
	}
	for _, c := range doc.Components {
		if !connected[c.ID] {
			res.AddWarning(fmt.Sprintf("component %d is not connected to any buffer", c.ID))
		}
	}

	if !settings.Memory.Auto {
		var declared uint64
		for _, b := range doc.Buffers {
			declared += uint64(b.Size)
		}
		budget := settings.Memory.RuntimeBytes + settings.Memory.SharedBytes + settings.Memory.DMABytes
		if declared > budget {
			res.AddWarning(fmt.Sprintf("buffers declare %d bytes, heap budget is %d", declared, budget))
		}
	}
	return res
}

// addErrors records each problem of a validation error separately.
func addErrors(res *buildinfo.ValidationResult, err error) {
	var tve topology.ValidationError
	if errors.As(err, &tve) {
		for _, e := range tve.Errors {
			res.AddError(e)
		}
		return
	}
	var cve conf.ValidationError
	if errors.As(err, &cve) {
		for _, e := range cve.Errors {
			res.AddError(e)
		}
		return
	}
	res.AddError(err.Error())
}
