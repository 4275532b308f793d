// Package buffer owns audio ring memory: allocation, resizing, reset and
// free, the attachment lists of the components on either side, and the
// borrow/commit protocol drivers use to read and write the ring without
// copying.
package buffer

import (
	"fmt"
	"slices"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/cache"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/memory"
	"github.com/tphakala/dspcore/internal/notifier"
)

// Construction flags.
const (
	UnderrunPermitted uint32 = 1 << iota
	OverrunPermitted
)

// Env is what buffers allocate from and report to.
type Env struct {
	Heap     memory.Allocator
	Cache    cache.Maintainer
	Notifier *notifier.Notifier
	Log      logger.Logger
}

func (e *Env) logger() logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Global().Module(ComponentBuffer)
}

// Buffer is one ring plus its ownership state. Methods on the data path
// are not safe for concurrent use; see Attach for the configuration path.
type Buffer struct {
	id   uint32
	name string

	stream audiostream.Stream
	region *cache.Region
	mem    []byte

	caps     memory.Caps
	flags    uint32
	isShared bool
	chmap    [audiostream.MaxChannels]uint8

	// set by SetParams, cleared by ClearParams
	hwParamsConfigured bool

	sources []CompRef
	sinks   []CompRef

	env *Env
	log logger.Logger

	// reused for every transaction event
	txn   Transaction
	freed bool
}

// Alloc allocates a buffer of size bytes from the pool selected by caps.
// flags takes UnderrunPermitted and OverrunPermitted. A shared buffer
// comes from the coherent zone and its region enforces cache maintenance.
func Alloc(env *Env, size uint32, caps memory.Caps, flags, align uint32, shared bool) (*Buffer, error) {
	if size == 0 {
		return nil, sizeError("alloc", size)
	}

	mem, err := env.Heap.Alloc(size, caps, heapFlags(shared), align)
	if err != nil {
		env.logger().Error("could not alloc buffer memory",
			logger.Uint32("size", size),
			logger.Uint32("caps", uint32(caps)),
			logger.Error(err))
		return nil, heapError("alloc", err, size, 0)
	}

	return newBuffer(env, mem, size, caps, flags, shared), nil
}

// AllocRange allocates the largest size in preferred, preferred-minimum,
// ... down to minimum that the pool can satisfy. preferred is first
// rounded up to a multiple of minimum.
func AllocRange(env *Env, preferred, minimum uint32, caps memory.Caps, flags, align uint32, shared bool) (*Buffer, error) {
	if minimum == 0 || preferred < minimum {
		return nil, rangeError("alloc_range", preferred, minimum)
	}

	preferred = roundUp(preferred, minimum)

	var lastErr error
	for size := preferred; size >= minimum; size -= minimum {
		mem, err := env.Heap.Alloc(size, caps, heapFlags(shared), align)
		if err == nil {
			env.logger().Debug("alloc_range satisfied",
				logger.Uint32("size", size),
				logger.Uint32("preferred", preferred),
				logger.Uint32("minimum", minimum))
			return newBuffer(env, mem, size, caps, flags, shared), nil
		}
		if !retryable(err) {
			return nil, heapError("alloc_range", err, size, 0)
		}
		lastErr = err
	}

	env.logger().Error("could not alloc buffer in range",
		logger.Uint32("preferred", preferred),
		logger.Uint32("minimum", minimum),
		logger.Uint32("caps", uint32(caps)))
	return nil, heapError("alloc_range", lastErr, minimum, 0)
}

func newBuffer(env *Env, mem []byte, size uint32, caps memory.Caps, flags uint32, shared bool) *Buffer {
	b := &Buffer{
		caps:     caps,
		flags:    flags,
		isShared: shared,
		mem:      mem,
		env:      env,
		log:      env.logger(),
	}
	b.SetID(0)
	b.region = cache.NewRegion(mem, env.Cache, shared)
	b.stream.Init(b.region, size)
	b.stream.SetUnderrunPermitted(flags&UnderrunPermitted != 0)
	b.stream.SetOverrunPermitted(flags&OverrunPermitted != 0)
	return b
}

func heapFlags(shared bool) memory.Flags {
	if shared {
		return memory.FlagCoherent
	}
	return 0
}

func roundUp(n, m uint32) uint32 {
	if r := n % m; r != 0 {
		n += m - r
	}
	return n
}

// ID is the topology identifier.
func (b *Buffer) ID() uint32 { return b.id }

// SetID sets the topology identifier.
func (b *Buffer) SetID(id uint32) {
	b.id = id
	b.name = fmt.Sprintf("buffer/%d", id)
	b.log = b.env.logger().With(logger.Uint32("buffer_id", id))
}

// String names the buffer in logs and records.
func (b *Buffer) String() string { return b.name }

// Stream exposes the ring. Drivers use it for format queries and for the
// copy helpers in audiostream.
func (b *Buffer) Stream() *audiostream.Stream { return &b.stream }

// Size is the ring capacity in bytes.
func (b *Buffer) Size() uint32 { return b.stream.Size() }

// Caps is the capability mask the memory was allocated with.
func (b *Buffer) Caps() memory.Caps { return b.caps }

// Shared reports whether the buffer is visible to more than one core.
func (b *Buffer) Shared() bool { return b.isShared }

// ChannelMap is the map applied by the last SetParams.
func (b *Buffer) ChannelMap() [audiostream.MaxChannels]uint8 { return b.chmap }

// Sources are the components producing into this buffer, most recently
// attached first.
func (b *Buffer) Sources() []CompRef { return slices.Clone(b.sources) }

// Sinks are the components consuming from this buffer, most recently
// attached first.
func (b *Buffer) Sinks() []CompRef { return slices.Clone(b.sinks) }

// MakeShared promotes the buffer to cross-core use. From here on every
// borrow invalidates and every commit writes back. It is one-way and
// must happen before the first cross-core connection.
func (b *Buffer) MakeShared() {
	if b.isShared {
		return
	}
	b.isShared = true
	b.region.MakeShared()
	b.log.Debug("buffer made shared")
}

// Free notifies BufferFree listeners, drops every registration that names
// the buffer as caller, and releases the memory. It is safe on a nil or
// already freed buffer.
func (b *Buffer) Free() {
	if b == nil || b.freed {
		return
	}
	b.log.Debug("buffer free")

	if n := b.env.Notifier; n != nil {
		n.Event(b, notifier.BufferFree, &Freed{Buffer: b})
		n.UnregisterAll(nil, b)
	}

	b.env.Heap.Free(b.mem)
	b.mem = nil
	b.region = nil
	b.stream.SetAddr(nil, 0)
	b.stream.Reset()
	b.sources = nil
	b.sinks = nil
	b.freed = true
}
