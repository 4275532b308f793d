// Package memory implements the capability-zoned heap that backs audio
// buffers. Each zone has a fixed byte budget; allocations never exceed it,
// so memory pressure behaves the way it does on the DSP.
package memory

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/tphakala/dspcore/internal/errors"
)

// Caps is a bitmask of memory capabilities a caller requires.
type Caps uint32

const (
	CapRAM   Caps = 1 << iota // plain system RAM
	CapDMA                    // reachable by DMA engines
	CapCache                  // cacheable alias
	CapHP                     // high-performance SRAM
)

// Has reports whether all bits of want are set.
func (c Caps) Has(want Caps) bool {
	return c&want == want
}

// Flags modify how an allocation is performed.
type Flags uint32

const (
	// FlagCoherent requests memory from the shared zone, visible to all cores.
	FlagCoherent Flags = 1 << iota
	// FlagNoCopy tells Realloc not to preserve contents.
	FlagNoCopy
)

// Zone identifies one budgeted pool.
type Zone int

const (
	ZoneRuntime Zone = iota
	ZoneShared
	ZoneDMA
	zoneCount
)

func (z Zone) String() string {
	switch z {
	case ZoneRuntime:
		return "runtime"
	case ZoneShared:
		return "shared"
	case ZoneDMA:
		return "dma"
	default:
		return fmt.Sprintf("zone(%d)", int(z))
	}
}

// ZoneFor picks the pool that serves a request. DMA capability wins over
// coherence because DMA memory is always mapped uncached.
func ZoneFor(caps Caps, flags Flags) Zone {
	switch {
	case caps.Has(CapDMA):
		return ZoneDMA
	case flags&FlagCoherent != 0:
		return ZoneShared
	default:
		return ZoneRuntime
	}
}

// Allocator is the contract buffers allocate through.
type Allocator interface {
	Alloc(size uint32, caps Caps, flags Flags, align uint32) ([]byte, error)
	// Realloc allocates the new block before releasing old; on failure old
	// is untouched.
	Realloc(old []byte, size uint32, caps Caps, flags Flags, align uint32) ([]byte, error)
	Free(b []byte)
}

// ZoneStats is a snapshot of one zone's accounting.
type ZoneStats struct {
	Zone     Zone
	Capacity uint64
	Used     uint64
	Peak     uint64
	Allocs   uint64
	Failures uint64
}

type block struct {
	zone Zone
	size uint32
}

type zone struct {
	capacity uint64
	used     uint64
	peak     uint64
	allocs   uint64
	failures uint64
}

// Heap is a budgeted allocator. It is safe for use from multiple cores.
type Heap struct {
	mu     sync.Mutex
	zones  [zoneCount]zone
	blocks map[*byte]block
}

// Config sets the byte budget of each zone.
type Config struct {
	RuntimeBytes uint64
	SharedBytes  uint64
	DMABytes     uint64
}

// NewHeap returns a heap with the given zone budgets.
func NewHeap(cfg Config) *Heap {
	h := &Heap{blocks: make(map[*byte]block)}
	h.zones[ZoneRuntime].capacity = cfg.RuntimeBytes
	h.zones[ZoneShared].capacity = cfg.SharedBytes
	h.zones[ZoneDMA].capacity = cfg.DMABytes
	return h
}

// Alloc returns a zeroed block of size bytes whose first byte is aligned to
// align (a power of two, 0 or 1 meaning no constraint).
func (h *Heap) Alloc(size uint32, caps Caps, flags Flags, align uint32) ([]byte, error) {
	if size == 0 {
		return nil, errInvalidSize
	}
	if align > 1 && align&(align-1) != 0 {
		return nil, errors.Newf("alignment %d is not a power of two", align).
			Component(ComponentMemory).
			Category(errors.CategoryInvalidSize).
			Build()
	}

	z := ZoneFor(caps, flags)

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.allocLocked(z, size, align)
}

func (h *Heap) allocLocked(z Zone, size, align uint32) ([]byte, error) {
	zn := &h.zones[z]
	if zn.used+uint64(size) > zn.capacity {
		zn.failures++
		return nil, errors.Newf("%s zone out of memory: %d bytes requested, %d free", z, size, zn.capacity-zn.used).
			Component(ComponentMemory).
			Category(errors.CategoryOutOfMemory).
			Context("zone", z.String()).
			Build()
	}

	b := alignedSlice(size, align)

	zn.used += uint64(size)
	zn.allocs++
	if zn.used > zn.peak {
		zn.peak = zn.used
	}
	h.blocks[&b[0]] = block{zone: z, size: size}

	return b, nil
}

// Realloc returns a new block of size bytes from the zone selected by
// caps/flags. The new block is obtained before old is released, so a failed
// call leaves old valid. Contents are copied unless FlagNoCopy is set.
func (h *Heap) Realloc(old []byte, size uint32, caps Caps, flags Flags, align uint32) ([]byte, error) {
	if len(old) == 0 {
		return h.Alloc(size, caps, flags, align)
	}

	nb, err := h.Alloc(size, caps, flags, align)
	if err != nil {
		return nil, err
	}
	if flags&FlagNoCopy == 0 {
		copy(nb, old)
	}
	h.Free(old)

	return nb, nil
}

// Free releases a block obtained from this heap. Unknown or nil blocks are
// ignored.
func (h *Heap) Free(b []byte) {
	if len(b) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := &b[0]
	blk, ok := h.blocks[key]
	if !ok {
		return
	}
	delete(h.blocks, key)
	h.zones[blk.zone].used -= uint64(blk.size)
}

// Stats returns a snapshot of every zone.
func (h *Heap) Stats() []ZoneStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ZoneStats, 0, zoneCount)
	for i := range h.zones {
		zn := &h.zones[i]
		out = append(out, ZoneStats{
			Zone:     Zone(i),
			Capacity: zn.capacity,
			Used:     zn.used,
			Peak:     zn.peak,
			Allocs:   zn.allocs,
			Failures: zn.failures,
		})
	}
	return out
}

// alignedSlice returns a size-byte slice whose base address is a multiple
// of align.
func alignedSlice(size, align uint32) []byte {
	if align <= 1 {
		return make([]byte, size)
	}
	raw := make([]byte, size+align-1)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	off := (uintptr(align) - addr%uintptr(align)) % uintptr(align)
	return raw[off : off+uintptr(size) : off+uintptr(size)]
}
