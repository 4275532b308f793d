package component

import (
	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/buffer"
)

// Copy runs the driver's copy when called from the device's core, or from
// any core for a DP device; otherwise it returns nil without running. It
// returns what the driver returned.
func (d *Device) Copy(core int) error {
	if core != d.core && d.domain != DomainDP {
		return nil
	}

	if !d.perfOn {
		return d.driver.Copy(d)
	}

	start := d.clock.Now()
	err := d.driver.Copy(d)
	d.perf.update(d.clock.CyclesSince(start), d.perfScale)
	return err
}

// CopyLimits is how much one copy call may move between two buffers.
type CopyLimits struct {
	Frames      uint32
	SourceBytes uint32
	SinkBytes   uint32
}

// GetCopyLimits is the largest frame count readable from src and writable
// to sink, with the byte count for each side in its own frame size.
func GetCopyLimits(src, sink *buffer.Buffer) CopyLimits {
	ss, ks := src.Stream(), sink.Stream()
	frames := audiostream.AvailFrames(ss, ks)
	return CopyLimits{
		Frames:      frames,
		SourceBytes: frames * ss.FrameBytes(),
		SinkBytes:   frames * ks.FrameBytes(),
	}
}

// GetCopyLimitsAligned is GetCopyLimits rounded down to the alignment set
// on each stream with SetAlign.
func GetCopyLimitsAligned(src, sink *buffer.Buffer) CopyLimits {
	ss, ks := src.Stream(), sink.Stream()
	frames := audiostream.AvailFramesAligned(ss, ks)
	return CopyLimits{
		Frames:      frames,
		SourceBytes: frames * ss.FrameBytes(),
		SinkBytes:   frames * ks.FrameBytes(),
	}
}
