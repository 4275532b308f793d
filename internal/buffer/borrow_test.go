package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/memory"
	"github.com/tphakala/dspcore/internal/notifier"
)

type txnLog struct {
	ids  []notifier.EventID
	txns []Transaction
}

func (l *txnLog) listen(t *testing.T, n *notifier.Notifier, b *Buffer) {
	t.Helper()
	for _, id := range []notifier.EventID{notifier.BufferProduce, notifier.BufferConsume} {
		require.NoError(t, n.Register(l, b, id, func(id notifier.EventID, data any) {
			l.ids = append(l.ids, id)
			l.txns = append(l.txns, *data.(*Transaction))
		}))
	}
}

func TestGetDataScenario(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 64, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)

	b.ProduceAndNotify(10)

	_, err = b.GetData(11)
	require.Error(t, err)
	assert.Same(t, ErrNoData, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNoData))

	r, err := b.GetData(10)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), r.Len)
	assert.Len(t, r.Head(), 10)
	assert.Empty(t, r.Tail())
	assert.Equal(t, uint32(64), r.Size)
	assert.Len(t, r.Start, 64)
}

func TestBorrowFailureDoesNotMove(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 32, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)
	b.ProduceAndNotify(20)
	b.ConsumeAndNotify(5)

	s := b.Stream()
	rp, wp, avail, free := s.ReadOffset(), s.WriteOffset(), s.Avail(), s.Free()

	_, err = b.GetData(16)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = b.GetBuffer(18)
	assert.ErrorIs(t, err, ErrNoData)

	assert.Equal(t, rp, s.ReadOffset())
	assert.Equal(t, wp, s.WriteOffset())
	assert.Equal(t, avail, s.Avail())
	assert.Equal(t, free, s.Free())
}

func TestBorrowCommitAcrossWrap(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 8, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)

	// move both cursors to 6
	b.ProduceAndNotify(6)
	b.ConsumeAndNotify(6)

	w, err := b.GetBuffer(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), w.Offset)
	require.Len(t, w.Head(), 2)
	require.Len(t, w.Tail(), 3)
	copy(w.Head(), []byte{1, 2})
	copy(w.Tail(), []byte{3, 4, 5})
	require.NoError(t, b.CommitBuffer(5))

	assert.Equal(t, uint32(5), b.DataAvailable())
	assert.Equal(t, uint32(3), b.FreeSize())
	assert.Equal(t, uint32(3), b.Stream().WriteOffset())

	r, err := b.GetData(5)
	require.NoError(t, err)
	got := append(append([]byte{}, r.Head()...), r.Tail()...)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)
	require.NoError(t, b.ReleaseData(5))

	assert.Zero(t, b.DataAvailable())
	assert.Equal(t, uint32(8), b.FreeSize())
}

func TestReleaseAndCommitRejectOverdraw(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 16, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)

	err = b.ReleaseData(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSize)

	require.NoError(t, b.CommitBuffer(16))
	err = b.CommitBuffer(1)
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.Equal(t, uint32(16), b.DataAvailable())
}

func TestProduceConsumeNotify(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 16, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)

	var log txnLog
	log.listen(t, env.Notifier, b)

	b.ProduceAndNotify(0)
	b.ConsumeAndNotify(0)
	assert.Empty(t, log.ids, "zero-byte updates emit nothing")
	assert.Zero(t, b.Stream().WriteOffset())

	b.ProduceAndNotify(12)
	b.ConsumeAndNotify(10)
	b.ProduceAndNotify(8)

	assert.Equal(t, []notifier.EventID{notifier.BufferProduce, notifier.BufferConsume, notifier.BufferProduce}, log.ids)
	assert.Equal(t, []Transaction{
		{Buffer: b, Amount: 12, BeginOffset: 0},
		{Buffer: b, Amount: 10, BeginOffset: 0},
		{Buffer: b, Amount: 8, BeginOffset: 12},
	}, log.txns)
	assert.Equal(t, uint32(10), b.DataAvailable())
}

func TestRoundTripFullRing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 48, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)

	b.ProduceAndNotify(48)
	assert.Equal(t, uint32(48), b.DataAvailable())
	assert.Zero(t, b.FreeSize())

	b.ConsumeAndNotify(48)
	s := b.Stream()
	assert.Zero(t, b.DataAvailable())
	assert.Equal(t, uint32(48), b.FreeSize())
	assert.Equal(t, s.ReadOffset(), s.WriteOffset())
}

func TestSharedCommitWritesBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 128, memory.CapRAM, 0, 0, true)
	require.NoError(t, err)

	// wrap the write cursor so the commit splits in two
	b.ProduceAndNotify(100)
	b.ConsumeAndNotify(100)

	_, err = b.GetBuffer(40)
	require.NoError(t, err)
	require.NoError(t, b.CommitBuffer(40))

	st := env.cache.Stats()
	assert.Equal(t, uint64(2), st.WritebackOps, "head and tail")

	_, err = b.GetData(40)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), env.cache.Stats().InvalidateOps)
}

func TestRecords(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b, err := Alloc(env.Env, 16, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)
	b.SetID(7)

	rec := (&Transaction{Buffer: b, Amount: 4, BeginOffset: 2}).Record(notifier.BufferProduce)
	assert.Equal(t, notifier.BufferProduce, rec.ID)
	assert.Equal(t, "buffer/7", rec.Source)
	assert.Equal(t, uint32(4), rec.Amount)
	assert.Equal(t, uint32(2), rec.Offset)

	rec = (&Freed{Buffer: b}).Record(notifier.BufferFree)
	assert.Equal(t, uint32(16), rec.Amount)
}

func TestRegionCopyHelpers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	src, err := Alloc(env.Env, 8, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)
	dst, err := Alloc(env.Env, 6, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)

	// src cursors at 5, dst cursors at 4: both borrows wrap, at different points
	src.ProduceAndNotify(5)
	src.ConsumeAndNotify(5)
	dst.ProduceAndNotify(4)
	dst.ConsumeAndNotify(4)

	w, err := src.GetBuffer(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), w.CopyIn([]byte{1, 2, 3, 4, 5, 6, 7}))
	require.NoError(t, src.CommitBuffer(5))

	r, err := src.GetData(5)
	require.NoError(t, err)
	out, err := dst.GetBuffer(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), CopyRegion(out, r))
	require.NoError(t, dst.CommitBuffer(5))
	require.NoError(t, src.ReleaseData(5))

	got := make([]byte, 8)
	r, err = dst.GetData(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), r.CopyOut(got))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, got)
}
