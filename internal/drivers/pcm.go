package drivers

import (
	"encoding/binary"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/errors"
)

// formatForDepth maps a WAV bit depth onto the container format the ring
// stores it in. 24-bit samples are carried in the low bytes of 32 bits.
func formatForDepth(depth int) (audiostream.FrameFormat, error) {
	switch depth {
	case 16:
		return audiostream.FormatS16LE, nil
	case 24:
		return audiostream.FormatS24_4LE, nil
	case 32:
		return audiostream.FormatS32LE, nil
	default:
		return 0, errors.Newf("unsupported bit depth: %d", depth).
			Component(ComponentDrivers).
			Category(errors.CategoryInvalidParams).
			Build()
	}
}

func depthForFormat(f audiostream.FrameFormat) (int, error) {
	switch f {
	case audiostream.FormatS16LE:
		return 16, nil
	case audiostream.FormatS24_4LE:
		return 24, nil
	case audiostream.FormatS32LE:
		return 32, nil
	default:
		return 0, errors.Newf("frame format %s cannot be written as PCM WAV", f).
			Component(ComponentDrivers).
			Category(errors.CategoryInvalidParams).
			Build()
	}
}

// packSamples writes samples into dst as little-endian containers of f.
// dst must hold len(samples)*f.SampleBytes() bytes.
func packSamples(dst []byte, samples []int, f audiostream.FrameFormat) {
	switch f.SampleBytes() {
	case 2:
		for i, v := range samples {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v)))
		}
	case 4:
		for i, v := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(v)))
		}
	}
}

// unpackSamples is the inverse of packSamples. 24-bit containers are sign
// extended from bit 23.
func unpackSamples(dst []int, src []byte, f audiostream.FrameFormat) {
	switch f {
	case audiostream.FormatS16LE:
		for i := range dst {
			dst[i] = int(int16(binary.LittleEndian.Uint16(src[i*2:])))
		}
	case audiostream.FormatS24_4LE:
		for i := range dst {
			dst[i] = int(int32(binary.LittleEndian.Uint32(src[i*4:])<<8) >> 8)
		}
	case audiostream.FormatS32LE:
		for i := range dst {
			dst[i] = int(int32(binary.LittleEndian.Uint32(src[i*4:])))
		}
	}
}

// grow returns s resliced to n, reallocating when its capacity is short.
func grow[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}
