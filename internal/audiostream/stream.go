// Package audiostream implements the circular byte-ring arithmetic audio
// buffers are built on.
//
// Cursors are byte offsets into the bound region, always in [0, size).
// avail + free == size holds after every operation. When the read and write
// cursors coincide the ring is either empty or full, and the last operation
// decides which: equal cursors after Produce mean full, after Consume empty.
package audiostream

import (
	"math/bits"

	"github.com/tphakala/dspcore/internal/cache"
)

// Stream is a ring over a cache.Region. The zero value is unbound; call
// Init before use. A Stream is not safe for concurrent use.
type Stream struct {
	region *cache.Region
	size   uint32

	rPtr  uint32
	wPtr  uint32
	avail uint32
	free  uint32

	frameFmt  FrameFormat
	validFmt  FrameFormat
	rate      uint32
	channels  uint32
	bufferFmt BufferFormat

	underrunPermitted bool
	overrunPermitted  bool

	byteAlignReq  uint32
	frameAlignReq uint32
	alignFrameCnt uint32
	alignShiftIdx uint32
}

// Init binds the stream to the first size bytes of r and resets it.
// size must not exceed r.Len().
func (s *Stream) Init(r *cache.Region, size uint32) {
	s.SetAddr(r, size)
	s.Reset()
	s.SetAlign(1, 1)
}

// SetAddr binds the stream to the first size bytes of r without touching
// cursors or memory contents.
func (s *Stream) SetAddr(r *cache.Region, size uint32) {
	s.region = r
	s.size = size
}

// Region returns the bound memory.
func (s *Stream) Region() *cache.Region { return s.region }

// Size is the ring capacity in bytes.
func (s *Stream) Size() uint32 { return s.size }

// ReadOffset is the read cursor.
func (s *Stream) ReadOffset() uint32 { return s.rPtr }

// WriteOffset is the write cursor.
func (s *Stream) WriteOffset() uint32 { return s.wPtr }

// Avail is the stored readable byte count, without underrun reporting.
func (s *Stream) Avail() uint32 { return s.avail }

// Free is the stored writable byte count, without overrun reporting.
func (s *Stream) Free() uint32 { return s.free }

func (s *Stream) FrameFmt() FrameFormat       { return s.frameFmt }
func (s *Stream) ValidFmt() FrameFormat       { return s.validFmt }
func (s *Stream) Rate() uint32                { return s.rate }
func (s *Stream) Channels() uint32            { return s.channels }
func (s *Stream) BufferFmt() BufferFormat     { return s.bufferFmt }
func (s *Stream) UnderrunPermitted() bool     { return s.underrunPermitted }
func (s *Stream) OverrunPermitted() bool      { return s.overrunPermitted }
func (s *Stream) SetUnderrunPermitted(v bool) { s.underrunPermitted = v }
func (s *Stream) SetOverrunPermitted(v bool)  { s.overrunPermitted = v }

// SetParams applies frame format, rate and channel count and recomputes
// the alignment constants.
func (s *Stream) SetParams(p *Params) error {
	if p == nil {
		return ErrInvalidParams
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.frameFmt = p.FrameFmt
	s.validFmt = p.ValidSampleFmt
	s.rate = p.Rate
	s.channels = p.Channels
	s.bufferFmt = p.BufferFmt

	s.recalcAlign()
	return nil
}

// SampleBytes is the container width of one sample.
func (s *Stream) SampleBytes() uint32 {
	return s.frameFmt.SampleBytes()
}

// FrameBytes is the size of one frame across all channels.
func (s *Stream) FrameBytes() uint32 {
	return s.frameFmt.FrameBytes(s.channels)
}

// PeriodBytes is the size of frames frames.
func (s *Stream) PeriodBytes(frames uint32) uint32 {
	return frames * s.FrameBytes()
}

// AvailBytes is the readable byte count. An underrun-permitted stream never
// reports empty: it reports a full ring instead so consumers keep their pace.
func (s *Stream) AvailBytes() uint32 {
	if s.underrunPermitted && s.avail == 0 {
		return s.size
	}
	return s.avail
}

// FreeBytes is the writable byte count. An overrun-permitted stream never
// reports full.
func (s *Stream) FreeBytes() uint32 {
	if s.overrunPermitted && s.free == 0 {
		return s.size
	}
	return s.free
}

// AvailFrames is AvailBytes in whole frames; 0 before params are set.
func (s *Stream) AvailFrames() uint32 {
	return divOrZero(s.AvailBytes(), s.FrameBytes())
}

// FreeFrames is FreeBytes in whole frames; 0 before params are set.
func (s *Stream) FreeFrames() uint32 {
	return divOrZero(s.FreeBytes(), s.FrameBytes())
}

// AvailSamples is AvailBytes in whole samples.
func (s *Stream) AvailSamples() uint32 {
	return divOrZero(s.AvailBytes(), s.SampleBytes())
}

// FreeSamples is FreeBytes in whole samples.
func (s *Stream) FreeSamples() uint32 {
	return divOrZero(s.FreeBytes(), s.SampleBytes())
}

func divOrZero(n, d uint32) uint32 {
	if d == 0 {
		return 0
	}
	return n / d
}

// Wrap folds an offset that ran past the end back into the ring.
func (s *Stream) Wrap(off uint32) uint32 {
	if off >= s.size && s.size > 0 {
		off %= s.size
	}
	return off
}

// RewindWrap moves off back by n bytes, wrapping below the start.
func (s *Stream) RewindWrap(off, n uint32) uint32 {
	if n > off {
		return s.size - (n - off)
	}
	return off - n
}

// Produce records n written bytes at the write cursor. Writing more than
// FreeBytes overwrites the oldest data: the read cursor is dragged to the
// new write cursor and the ring is full.
func (s *Stream) Produce(n uint32) {
	if n == 0 {
		return
	}

	s.wPtr = s.Wrap(s.wPtr + n)

	if n > s.FreeBytes() {
		s.rPtr = s.wPtr
	}

	switch {
	case s.rPtr < s.wPtr:
		s.avail = s.wPtr - s.rPtr
	case s.rPtr == s.wPtr:
		s.avail = s.size
	default:
		s.avail = s.size - (s.rPtr - s.wPtr)
	}
	s.free = s.size - s.avail
}

// Consume records n read bytes at the read cursor.
func (s *Stream) Consume(n uint32) {
	if n == 0 {
		return
	}

	s.rPtr = s.Wrap(s.rPtr + n)

	switch {
	case s.rPtr < s.wPtr:
		s.avail = s.wPtr - s.rPtr
	case s.rPtr == s.wPtr:
		s.avail = 0
	default:
		s.avail = s.size - (s.rPtr - s.wPtr)
	}
	s.free = s.size - s.avail
}

// Reset empties the ring. Memory contents are left as they are.
func (s *Stream) Reset() {
	s.rPtr = 0
	s.wPtr = 0
	s.avail = 0
	s.free = s.size
}

// BytesWithoutWrap is the distance from off to the end of the ring.
func (s *Stream) BytesWithoutWrap(off uint32) uint32 {
	return s.size - off
}

// FramesWithoutWrap is BytesWithoutWrap in whole frames.
func (s *Stream) FramesWithoutWrap(off uint32) uint32 {
	return divOrZero(s.BytesWithoutWrap(off), s.FrameBytes())
}

// RewindWptrByBytes returns where the write cursor was n bytes ago.
func (s *Stream) RewindWptrByBytes(n uint32) uint32 {
	return s.RewindWrap(s.wPtr, n)
}

// Split divides n bytes starting at off into the part before the end of
// the ring and the part that wraps to its start.
func (s *Stream) Split(off, n uint32) (headLen, tailLen uint32) {
	if off+n > s.size {
		headLen = s.size - off
		return headLen, n - headLen
	}
	return n, 0
}

// Invalidate prepares n bytes at the read cursor for reading, head and
// wrapped tail separately.
func (s *Stream) Invalidate(n uint32) {
	head, tail := s.Split(s.rPtr, n)
	s.region.View(s.rPtr, head)
	if tail > 0 {
		s.region.View(0, tail)
	}
}

// Writeback publishes n bytes at the write cursor, head and wrapped tail
// separately.
func (s *Stream) Writeback(n uint32) {
	head, tail := s.Split(s.wPtr, n)
	s.region.Commit(s.wPtr, head)
	if tail > 0 {
		s.region.Commit(0, tail)
	}
}

// SetAlign sets the processing alignment: every copy must move a byte
// count that is a multiple of byteAlign, and a frame count that is a
// multiple of frameAlign. Zero values mean 1.
func (s *Stream) SetAlign(byteAlign, frameAlign uint32) {
	s.byteAlignReq = max(byteAlign, 1)
	s.frameAlignReq = max(frameAlign, 1)
	s.recalcAlign()
}

// AlignFrameCount is the smallest frame count meeting both alignment
// requirements.
func (s *Stream) AlignFrameCount() uint32 { return s.alignFrameCnt }

// AlignShift is the shift applied to byte counts in AvailFramesAligned.
func (s *Stream) AlignShift() uint32 { return s.alignShiftIdx }

func (s *Stream) recalcAlign() {
	if s.byteAlignReq == 0 {
		s.byteAlignReq = 1
	}
	if s.frameAlignReq == 0 {
		s.frameAlignReq = 1
	}

	frameSize := s.FrameBytes()

	// frames needed for byte alignment, then lcm with the frame requirement
	frames := s.byteAlignReq / gcd(s.byteAlignReq, frameSize)
	s.alignFrameCnt = s.frameAlignReq * frames / gcd(frames, s.frameAlignReq)

	processSize := s.alignFrameCnt * frameSize
	switch {
	case processSize == 0:
		s.alignShiftIdx = 0
	case processSize&(processSize-1) == 0:
		s.alignShiftIdx = uint32(31 - bits.LeadingZeros32(processSize))
	default:
		s.alignShiftIdx = uint32(32 - bits.LeadingZeros32(processSize))
	}
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
