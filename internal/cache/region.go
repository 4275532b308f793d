// Package cache makes data-cache maintenance explicit. Memory that may be
// seen by more than one core is wrapped in a Region whose accessors call the
// Maintainer, so a reader cannot skip the invalidate and a writer cannot
// skip the writeback.
package cache

import (
	"sync/atomic"
)

// LineSize is the d-cache line size maintenance operations are rounded to.
const LineSize = 64

// Maintainer performs d-cache operations on a byte range.
type Maintainer interface {
	Invalidate(b []byte)
	Writeback(b []byte)
}

// Nop is a Maintainer for fully coherent hosts.
type Nop struct{}

func (Nop) Invalidate([]byte) {}
func (Nop) Writeback([]byte)  {}

// Counting records maintenance traffic. It is what the runtime installs by
// default, and what tests assert against.
type Counting struct {
	invalidateOps   atomic.Uint64
	invalidateBytes atomic.Uint64
	writebackOps    atomic.Uint64
	writebackBytes  atomic.Uint64
}

// Invalidate counts an invalidate of b rounded out to whole lines.
func (c *Counting) Invalidate(b []byte) {
	c.invalidateOps.Add(1)
	c.invalidateBytes.Add(lines(len(b)))
}

// Writeback counts a writeback of b rounded out to whole lines.
func (c *Counting) Writeback(b []byte) {
	c.writebackOps.Add(1)
	c.writebackBytes.Add(lines(len(b)))
}

// Stats is a snapshot of maintenance traffic.
type Stats struct {
	InvalidateOps   uint64
	InvalidateBytes uint64
	WritebackOps    uint64
	WritebackBytes  uint64
}

// Stats returns the counters.
func (c *Counting) Stats() Stats {
	return Stats{
		InvalidateOps:   c.invalidateOps.Load(),
		InvalidateBytes: c.invalidateBytes.Load(),
		WritebackOps:    c.writebackOps.Load(),
		WritebackBytes:  c.writebackBytes.Load(),
	}
}

func lines(n int) uint64 {
	return uint64((n + LineSize - 1) / LineSize * LineSize)
}

// Region is a block of memory with explicit coherence. A local region is
// only touched by its owning core and its accessors skip maintenance. A
// shared region invalidates on View and writes back on Commit.
type Region struct {
	data   []byte
	m      Maintainer
	shared atomic.Bool
}

// NewRegion wraps data. A nil Maintainer selects Nop.
func NewRegion(data []byte, m Maintainer, shared bool) *Region {
	if m == nil {
		m = Nop{}
	}
	r := &Region{data: data, m: m}
	r.shared.Store(shared)
	return r
}

// Len is the size of the region in bytes.
func (r *Region) Len() uint32 {
	return uint32(len(r.data))
}

// Shared reports whether cross-core maintenance is enforced.
func (r *Region) Shared() bool {
	return r.shared.Load()
}

// MakeShared switches the region to cross-core mode. It is one-way.
func (r *Region) MakeShared() {
	r.shared.Store(true)
}

// View returns data[off:off+n] for reading, invalidating it first when the
// region is shared.
func (r *Region) View(off, n uint32) []byte {
	seg := r.data[off : off+n]
	if r.Shared() && n > 0 {
		r.m.Invalidate(seg)
	}
	return seg
}

// Commit publishes data[off:off+n] after a write, writing it back when the
// region is shared.
func (r *Region) Commit(off, n uint32) {
	if r.Shared() && n > 0 {
		r.m.Writeback(r.data[off : off+n])
	}
}

// Writeback unconditionally writes back the first n bytes. DMA engines
// read memory directly, so this ignores the shared flag.
func (r *Region) Writeback(n uint32) {
	if n > 0 {
		r.m.Writeback(r.data[:n])
	}
}

// Zero clears the first n bytes.
func (r *Region) Zero(n uint32) {
	clear(r.data[:n])
}

// Bytes exposes the whole backing slice without maintenance. Callers that
// use it must pair their accesses with View and Commit.
func (r *Region) Bytes() []byte {
	return r.data
}

// Maintainer returns the region's cache maintainer.
func (r *Region) Maintainer() Maintainer {
	return r.m
}
