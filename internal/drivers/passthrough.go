package drivers

import (
	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
)

// passthrough copies its single source buffer to every sink unchanged.
// Each copy moves the largest frame count every sink can take.
type passthrough struct {
	component.BaseDriver
}

func newPassthrough(*component.Device) (component.Driver, error) {
	return &passthrough{}, nil
}

// Prepare checks connections and propagates the source format to sinks
// that have none yet. Sinks already configured must match it.
func (p *passthrough) Prepare(dev *component.Device) error {
	sources, sinks := dev.Sources(), dev.Sinks()
	if len(sources) != 1 || len(sinks) == 0 {
		return connectionError(dev, len(sources), len(sinks))
	}

	src := sources[0]
	if !src.ParamsConfigured() {
		return errors.Newf("passthrough source %s has no params", src).
			Component(ComponentDrivers).
			Category(errors.CategoryInvalidParams).
			Context("comp_id", dev.ID()).
			Build()
	}

	params := src.Params()
	for _, sink := range sinks {
		if err := sink.SetParams(&params, false); err != nil {
			return err
		}
		if !sink.ParamsMatch(&params, buffer.MatchAll) {
			return errors.Newf("passthrough sink %s format differs from source %s", sink, src).
				Component(ComponentDrivers).
				Category(errors.CategoryInvalidParams).
				Context("comp_id", dev.ID()).
				Build()
		}
	}
	return nil
}

func (p *passthrough) Copy(dev *component.Device) error {
	sources, sinks := dev.Sources(), dev.Sinks()
	if len(sources) == 0 || len(sinks) == 0 {
		return nil
	}
	src := sources[0]

	frames := ^uint32(0)
	for _, sink := range sinks {
		frames = min(frames, component.GetCopyLimits(src, sink).Frames)
	}
	if frames == 0 {
		return nil
	}

	n := frames * src.Stream().FrameBytes()
	in, err := src.GetData(n)
	if err != nil {
		return err
	}
	for _, sink := range sinks {
		out, err := sink.GetBuffer(n)
		if err != nil {
			return err
		}
		buffer.CopyRegion(out, in)
		if err := sink.CommitBuffer(n); err != nil {
			return err
		}
	}
	return src.ReleaseData(n)
}
