package buffer

import (
	"github.com/tphakala/dspcore/internal/cache"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/memory"
)

// SetSize resizes the ring. Contents are not preserved. When growing fails
// the buffer is untouched and an out-of-memory error is returned; when
// shrinking fails the current memory is kept and only its first size bytes
// are used. The stream is reset after any successful resize.
func (b *Buffer) SetSize(size, align uint32) error {
	if b.freed {
		return freedError("set_size")
	}
	if size == 0 {
		b.log.Error("resize size is invalid", logger.Uint32("size", size))
		return sizeError("set_size", size)
	}

	cur := b.stream.Size()
	if size == cur {
		return nil
	}

	mem, err := b.env.Heap.Realloc(b.mem, size, b.caps, b.reallocFlags(), align)
	if err != nil && (size > cur || !retryable(err)) {
		b.log.Error("resize can't alloc",
			logger.Uint32("size", size),
			logger.Uint32("caps", uint32(b.caps)),
			logger.Error(err))
		return heapError("set_size", err, size, cur)
	}

	b.rebind(mem, size)
	return nil
}

// SetSizeRange resizes the ring to the largest of preferred,
// preferred-minimum, ... down to minimum that the pool can satisfy, with
// preferred first rounded up to a multiple of minimum. When no candidate
// can be allocated the ring shrinks in place to the largest candidate that
// fits the current memory, or fails with out-of-memory if none does.
func (b *Buffer) SetSizeRange(preferred, minimum, align uint32) error {
	if b.freed {
		return freedError("set_size_range")
	}
	if minimum == 0 || preferred < minimum {
		b.log.Error("resize size range is invalid",
			logger.Uint32("preferred", preferred),
			logger.Uint32("minimum", minimum))
		return rangeError("set_size_range", preferred, minimum)
	}

	preferred = roundUp(preferred, minimum)
	cur := b.stream.Size()
	if preferred == cur {
		return nil
	}

	var lastErr error
	for size := preferred; size >= minimum; size -= minimum {
		mem, err := b.env.Heap.Realloc(b.mem, size, b.caps, b.reallocFlags(), align)
		if err == nil {
			b.rebind(mem, size)
			return nil
		}
		if !retryable(err) {
			return heapError("set_size_range", err, size, cur)
		}
		lastErr = err
	}

	// largest candidate the current memory can hold
	if minimum <= cur {
		size := preferred
		for size > cur {
			size -= minimum
		}
		b.rebind(nil, size)
		return nil
	}

	b.log.Error("resize can't alloc in range",
		logger.Uint32("preferred", preferred),
		logger.Uint32("minimum", minimum),
		logger.Uint32("caps", uint32(b.caps)))
	return heapError("set_size_range", lastErr, minimum, cur)
}

func (b *Buffer) reallocFlags() memory.Flags {
	return heapFlags(b.isShared) | memory.FlagNoCopy
}

// rebind points the stream at mem, or keeps the current memory when mem is
// nil, and reinitialises it for size bytes.
func (b *Buffer) rebind(mem []byte, size uint32) {
	if mem != nil {
		b.mem = mem
		b.region = cache.NewRegion(mem, b.env.Cache, b.isShared)
	}

	underrun := b.stream.UnderrunPermitted()
	overrun := b.stream.OverrunPermitted()
	b.stream.Init(b.region, size)
	b.stream.SetUnderrunPermitted(underrun)
	b.stream.SetOverrunPermitted(overrun)

	b.log.Debug("buffer resized", logger.Uint32("size", size))
}

// Reset zeroes the ring memory and empties the stream. DMA-capable memory
// is written back before the stream is reset, since the engine reads it
// directly. Resetting a freed buffer does nothing.
func (b *Buffer) Reset() {
	if b.freed {
		return
	}
	size := b.stream.Size()
	b.region.Zero(size)
	if b.caps.Has(memory.CapDMA) {
		b.region.Writeback(size)
	}
	b.stream.Reset()
}
