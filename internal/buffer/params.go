package buffer

import (
	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// Match selects the fields ParamsMatch compares.
type Match uint32

const (
	MatchFrameFmt Match = 1 << iota
	MatchRate
	MatchChannels
	MatchAll = MatchFrameFmt | MatchRate | MatchChannels
)

// SetParams applies p to the stream. Params are applied once per
// configuration epoch: later calls are ignored until ClearParams, unless
// force is set.
func (b *Buffer) SetParams(p *audiostream.Params, force bool) error {
	if p == nil {
		b.log.Error("set_params without params")
		return ErrInvalidParams
	}

	if b.hwParamsConfigured && !force {
		return nil
	}

	if err := b.stream.SetParams(p); err != nil {
		b.log.Error("stream rejected params", logger.Error(err))
		return errors.New(err).
			Component(ComponentBuffer).
			Category(errors.CategoryInvalidParams).
			Context("buffer_id", b.id).
			Build()
	}

	b.chmap = p.ChMap
	b.hwParamsConfigured = true
	return nil
}

// ClearParams opens a new configuration epoch.
func (b *Buffer) ClearParams() {
	b.hwParamsConfigured = false
}

// ParamsConfigured reports whether params were applied in this epoch.
func (b *Buffer) ParamsConfigured() bool { return b.hwParamsConfigured }

// ParamsMatch compares the stream format with p on the fields in mask.
func (b *Buffer) ParamsMatch(p *audiostream.Params, mask Match) bool {
	if mask&MatchFrameFmt != 0 && b.stream.FrameFmt() != p.FrameFmt {
		return false
	}
	if mask&MatchRate != 0 && b.stream.Rate() != p.Rate {
		return false
	}
	if mask&MatchChannels != 0 && b.stream.Channels() != p.Channels {
		return false
	}
	return true
}

// Params returns the stream format currently applied, with the channel map.
func (b *Buffer) Params() audiostream.Params {
	s := &b.stream
	return audiostream.Params{
		FrameFmt:       s.FrameFmt(),
		ValidSampleFmt: s.ValidFmt(),
		Rate:           s.Rate(),
		Channels:       s.Channels(),
		BufferFmt:      s.BufferFmt(),
		ChMap:          b.chmap,
	}
}
