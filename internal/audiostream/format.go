package audiostream

import (
	"fmt"
	"strings"

	"github.com/tphakala/dspcore/internal/errors"
)

// FrameFormat is the sample container format. Values follow the host
// protocol numbering.
type FrameFormat uint8

const (
	FormatS16LE FrameFormat = iota
	FormatS24_4LE
	FormatS32LE
	FormatFloat
	FormatS24_3LE
	FormatS24_4LE_MSB
	FormatU8
	FormatALaw
	FormatMuLaw
	formatCount
)

var formatNames = [formatCount]string{
	"S16_LE", "S24_4LE", "S32_LE", "FLOAT", "S24_3LE", "S24_4LE_MSB", "U8", "A_LAW", "MU_LAW",
}

// Valid reports whether f is a known format.
func (f FrameFormat) Valid() bool {
	return f < formatCount
}

// SampleBytes is the container width of one sample.
func (f FrameFormat) SampleBytes() uint32 {
	switch f {
	case FormatS16LE:
		return 2
	case FormatS24_3LE:
		return 3
	case FormatU8, FormatALaw, FormatMuLaw:
		return 1
	case FormatS24_4LE, FormatS32LE, FormatFloat, FormatS24_4LE_MSB:
		return 4
	default:
		return 0
	}
}

// FrameBytes is the size of one frame of ch channels.
func (f FrameFormat) FrameBytes(ch uint32) uint32 {
	return f.SampleBytes() * ch
}

func (f FrameFormat) String() string {
	if f.Valid() {
		return formatNames[f]
	}
	return fmt.Sprintf("FrameFormat(%d)", uint8(f))
}

// ParseFrameFormat accepts the names printed by String, case-insensitively.
func ParseFrameFormat(s string) (FrameFormat, error) {
	for i, name := range formatNames {
		if strings.EqualFold(s, name) {
			return FrameFormat(i), nil
		}
	}
	return 0, errors.Newf("unknown frame format %q", s).
		Component(ComponentAudioStream).
		Category(errors.CategoryInvalidParams).
		Build()
}

// BufferFormat is the sample layout in memory.
type BufferFormat uint8

const (
	Interleaved BufferFormat = iota
	NonInterleaved
)

// MaxChannels is the channel-map width.
const MaxChannels = 8

// Params is the stream format applied by Buffer.SetParams.
type Params struct {
	FrameFmt       FrameFormat
	ValidSampleFmt FrameFormat
	Rate           uint32
	Channels       uint32
	BufferFmt      BufferFormat
	ChMap          [MaxChannels]uint8
}

// Validate rejects formats the data plane cannot size frames for.
func (p *Params) Validate() error {
	switch {
	case !p.FrameFmt.Valid():
		return errors.Newf("invalid params: unknown frame format %d", p.FrameFmt).
			Component(ComponentAudioStream).
			Category(errors.CategoryInvalidParams).
			Build()
	case p.Channels == 0 || p.Channels > MaxChannels:
		return errors.Newf("invalid params: %d channels, want 1..%d", p.Channels, MaxChannels).
			Component(ComponentAudioStream).
			Category(errors.CategoryInvalidParams).
			Build()
	}
	return nil
}

// FrameBytes is the size of one frame for these params.
func (p *Params) FrameBytes() uint32 {
	return p.FrameFmt.FrameBytes(p.Channels)
}
