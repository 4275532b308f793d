package audiostream

// CopyCheck is the outcome of CanCopyBytes.
type CopyCheck int

const (
	CopyOK       CopyCheck = 0
	CopyOverrun  CopyCheck = 1  // not enough free space in the sink
	CopyUnderrun CopyCheck = -1 // not enough data in the source
)

// CanCopyBytes reports whether n bytes can move from src to sink.
func CanCopyBytes(src, sink *Stream, n uint32) CopyCheck {
	if src.AvailBytes() < n {
		return CopyUnderrun
	}
	if sink.FreeBytes() < n {
		return CopyOverrun
	}
	return CopyOK
}

// CopyBytes is the largest byte count that can move from src to sink.
func CopyBytes(src, sink *Stream) uint32 {
	return min(src.AvailBytes(), sink.FreeBytes())
}

// AvailFrames is the largest frame count that can move from src to sink,
// each side measured in its own frame size.
func AvailFrames(src, sink *Stream) uint32 {
	return min(src.AvailFrames(), sink.FreeFrames())
}

// AvailFramesAligned is AvailFrames rounded down to each side's alignment
// block.
func AvailFramesAligned(src, sink *Stream) uint32 {
	srcFrames := (src.AvailBytes() >> src.alignShiftIdx) * src.alignFrameCnt
	sinkFrames := (sink.FreeBytes() >> sink.alignShiftIdx) * sink.alignFrameCnt
	return min(srcFrames, sinkFrames)
}

// Copy moves samples samples from src, starting ioffset samples past its
// read cursor, to sink, starting ooffset samples past its write cursor.
// Cursors are not advanced. Both sides must share a sample width.
func Copy(src *Stream, ioffset uint32, sink *Stream, ooffset uint32, samples uint32) uint32 {
	sb := src.SampleBytes()
	from := src.Wrap(src.rPtr + ioffset*sb)
	to := sink.Wrap(sink.wPtr + ooffset*sb)

	ringCopy(sink, to, src, from, samples*sb)
	return samples
}

// CopyToLinear fills dst from src starting off bytes past the read cursor.
func CopyToLinear(src *Stream, off uint32, dst []byte) {
	pos := src.Wrap(src.rPtr + off)
	mem := src.region.Bytes()
	for n := uint32(len(dst)); n > 0; {
		chunk := min(n, src.size-pos)
		if chunk == 0 {
			return
		}
		copy(dst, mem[pos:pos+chunk])
		dst = dst[chunk:]
		n -= chunk
		pos = src.Wrap(pos + chunk)
	}
}

// CopyFromLinear writes src into sink starting off bytes past the write
// cursor.
func CopyFromLinear(src []byte, sink *Stream, off uint32) {
	pos := sink.Wrap(sink.wPtr + off)
	mem := sink.region.Bytes()
	for n := uint32(len(src)); n > 0; {
		chunk := min(n, sink.size-pos)
		if chunk == 0 {
			return
		}
		copy(mem[pos:pos+chunk], src)
		src = src[chunk:]
		n -= chunk
		pos = sink.Wrap(pos + chunk)
	}
}

// ringCopy copies n bytes between two rings, splitting at whichever wrap
// boundary comes first.
func ringCopy(dst *Stream, dstOff uint32, src *Stream, srcOff uint32, n uint32) {
	dmem := dst.region.Bytes()
	smem := src.region.Bytes()
	for n > 0 {
		chunk := min(n, src.size-srcOff, dst.size-dstOff)
		if chunk == 0 {
			return
		}
		copy(dmem[dstOff:dstOff+chunk], smem[srcOff:srcOff+chunk])
		n -= chunk
		srcOff = src.Wrap(srcOff + chunk)
		dstOff = dst.Wrap(dstOff + chunk)
	}
}

// SetZero writes n zero bytes at the write cursor without advancing it.
// It returns false, writing nothing, when fewer than n bytes are free.
func (s *Stream) SetZero(n uint32) bool {
	if s.FreeBytes() < n {
		return false
	}
	mem := s.region.Bytes()
	head, tail := s.Split(s.wPtr, n)
	clear(mem[s.wPtr : s.wPtr+head])
	clear(mem[:tail])
	return true
}
