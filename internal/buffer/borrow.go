package buffer

import (
	"time"

	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/notifier"
)

// Source is the read side of a buffer as a driver sees it.
type Source interface {
	DataAvailable() uint32
	GetData(n uint32) (Region, error)
	ReleaseData(n uint32) error
}

// Sink is the write side of a buffer as a driver sees it.
type Sink interface {
	FreeSize() uint32
	GetBuffer(n uint32) (Region, error)
	CommitBuffer(n uint32) error
}

var (
	_ Source = (*Buffer)(nil)
	_ Sink   = (*Buffer)(nil)
)

// Region is a borrowed span of the ring. Data runs from the cursor to the
// end of the ring memory, Start is the whole ring, and a borrow of Len
// bytes continues at Start once Data is exhausted.
type Region struct {
	Data   []byte
	Start  []byte
	Size   uint32
	Offset uint32
	Len    uint32
}

// Head is the part of the borrow before the wrap boundary.
func (r Region) Head() []byte {
	return r.Data[:min(r.Len, uint32(len(r.Data)))]
}

// Tail is the part of the borrow that wrapped to the start of the ring;
// empty when the borrow did not wrap.
func (r Region) Tail() []byte {
	return r.Start[:r.Len-uint32(len(r.Head()))]
}

// at returns the ring memory from off bytes into the borrow up to the
// wrap boundary.
func (r Region) at(off uint32) []byte {
	pos := r.Offset + off
	if pos >= r.Size {
		pos -= r.Size
	}
	return r.Start[pos:]
}

// CopyIn writes p into the borrow, wrapping as needed, and returns the
// number of bytes written: at most Len.
func (r Region) CopyIn(p []byte) uint32 {
	n := min(uint32(len(p)), r.Len)
	var done uint32
	for done < n {
		done += uint32(copy(r.at(done), p[done:n]))
	}
	return n
}

// CopyOut reads the borrow into p, wrapping as needed, and returns the
// number of bytes read: at most Len.
func (r Region) CopyOut(p []byte) uint32 {
	n := min(uint32(len(p)), r.Len)
	var done uint32
	for done < n {
		done += uint32(copy(p[done:n], r.at(done)))
	}
	return n
}

// CopyRegion copies between two borrows, each wrapping on its own ring,
// and returns the number of bytes copied: the smaller of the two lengths.
func CopyRegion(dst, src Region) uint32 {
	n := min(dst.Len, src.Len)
	var done uint32
	for done < n {
		d := dst.at(done)
		s := src.at(done)
		c := min(uint32(len(d)), uint32(len(s)), n-done)
		copy(d[:c], s[:c])
		done += c
	}
	return n
}

// DataAvailable is the readable byte count.
func (b *Buffer) DataAvailable() uint32 {
	return b.stream.AvailBytes()
}

// GetData borrows n readable bytes at the read cursor. It fails with
// ErrNoData, changing nothing, when fewer than n bytes are available.
// The borrowed range is invalidated before it is returned.
func (b *Buffer) GetData(n uint32) (Region, error) {
	if b.freed {
		return Region{}, freedError("get_data")
	}
	if n > b.stream.AvailBytes() {
		return Region{}, ErrNoData
	}
	b.stream.Invalidate(n)
	return b.borrow(b.stream.ReadOffset(), n), nil
}

// ReleaseData returns n bytes of a GetData borrow to the ring.
func (b *Buffer) ReleaseData(n uint32) error {
	if b.freed {
		return freedError("release_data")
	}
	if n > b.stream.AvailBytes() {
		return overdrawError("release_data", n, b.stream.AvailBytes())
	}
	b.ConsumeAndNotify(n)
	return nil
}

// FreeSize is the writable byte count.
func (b *Buffer) FreeSize() uint32 {
	return b.stream.FreeBytes()
}

// GetBuffer borrows n writable bytes at the write cursor. It fails with
// ErrNoData, changing nothing, when fewer than n bytes are free.
func (b *Buffer) GetBuffer(n uint32) (Region, error) {
	if b.freed {
		return Region{}, freedError("get_buffer")
	}
	if n > b.stream.FreeBytes() {
		return Region{}, ErrNoData
	}
	return b.borrow(b.stream.WriteOffset(), n), nil
}

// CommitBuffer publishes n bytes written into a GetBuffer borrow: the
// range is written back, then produced.
func (b *Buffer) CommitBuffer(n uint32) error {
	if b.freed {
		return freedError("commit_buffer")
	}
	if n > b.stream.FreeBytes() {
		return overdrawError("commit_buffer", n, b.stream.FreeBytes())
	}
	b.stream.Writeback(n)
	b.ProduceAndNotify(n)
	return nil
}

func (b *Buffer) borrow(off, n uint32) Region {
	size := b.stream.Size()
	mem := b.region.Bytes()[:size]
	return Region{
		Data:   mem[off:],
		Start:  mem,
		Size:   size,
		Offset: off,
		Len:    n,
	}
}

func overdrawError(op string, n, limit uint32) error {
	return errors.Newf("%s: %d bytes exceeds %d", op, n, limit).
		Component(ComponentBuffer).
		Category(errors.CategoryInvalidSize).
		SizeContext(n, limit).
		Build()
}

// Transaction is the payload of BufferProduce and BufferConsume events.
// The same value is reused for every event of a buffer; listeners must
// copy what they keep.
type Transaction struct {
	Buffer      *Buffer
	Amount      uint32
	BeginOffset uint32
}

// Record implements notifier.Recordable.
func (t *Transaction) Record(id notifier.EventID) notifier.Record {
	return notifier.Record{
		ID:     id,
		Source: t.Buffer.name,
		Amount: t.Amount,
		Offset: t.BeginOffset,
		Time:   time.Now(),
	}
}

// Freed is the payload of BufferFree events.
type Freed struct {
	Buffer *Buffer
}

// Record implements notifier.Recordable.
func (f *Freed) Record(id notifier.EventID) notifier.Record {
	return notifier.Record{
		ID:     id,
		Source: f.Buffer.name,
		Amount: f.Buffer.Size(),
		Time:   time.Now(),
	}
}

// ProduceAndNotify advances the write cursor by n and emits BufferProduce
// with the offset the write began at. n == 0 does nothing at all, and
// neither does any n on a freed buffer.
func (b *Buffer) ProduceAndNotify(n uint32) {
	if n == 0 || b.freed {
		return
	}
	begin := b.stream.WriteOffset()
	b.stream.Produce(n)
	b.notify(notifier.BufferProduce, n, begin)
}

// ConsumeAndNotify advances the read cursor by n and emits BufferConsume
// with the offset the read began at. n == 0 does nothing at all, and
// neither does any n on a freed buffer.
func (b *Buffer) ConsumeAndNotify(n uint32) {
	if n == 0 || b.freed {
		return
	}
	begin := b.stream.ReadOffset()
	b.stream.Consume(n)
	b.notify(notifier.BufferConsume, n, begin)
}

func (b *Buffer) notify(id notifier.EventID, n, begin uint32) {
	nt := b.env.Notifier
	if nt == nil {
		return
	}
	b.txn = Transaction{Buffer: b, Amount: n, BeginOffset: begin}
	nt.Event(b, id, &b.txn)
}
