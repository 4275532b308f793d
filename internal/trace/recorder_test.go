package trace

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/notifier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func record(i int, src string) notifier.Record {
	return notifier.Record{
		ID:     notifier.BufferProduce,
		Source: src,
		Amount: uint32(i),
		Offset: uint32(i * 2),
		Value:  int64(-i),
		Time:   time.Unix(1700000000, int64(i)),
	}
}

func TestRecorderKeepsOrder(t *testing.T) {
	t.Parallel()

	r := NewRecorder(8, logger.NewDiscard())
	require.NoError(t, r.Add(record(1, "buffer/1")))
	require.NoError(t, r.Add(record(2, "buffer/2")))
	require.NoError(t, r.Add(record(3, "buffer/1")))

	got := r.Drain()
	require.Len(t, got, 3)
	for i, e := range got {
		want := record(i+1, []string{"buffer/1", "buffer/2", "buffer/1"}[i])
		assert.Equal(t, want.ID, e.ID)
		assert.Equal(t, want.Source, e.Source)
		assert.Equal(t, want.Amount, e.Amount)
		assert.Equal(t, want.Offset, e.Offset)
		assert.Equal(t, want.Value, e.Value)
		assert.True(t, want.Time.Equal(e.Time))
	}
	assert.Empty(t, r.Drain())
}

func TestRecorderOverwritesOldest(t *testing.T) {
	t.Parallel()

	r := NewRecorder(4, logger.NewDiscard())
	for i := range 10 {
		require.NoError(t, r.Add(record(i, "buffer/1")))
	}

	stats := r.Stats()
	assert.Equal(t, uint64(10), stats.Recorded)
	assert.Equal(t, uint64(6), stats.Overwritten)
	assert.Equal(t, 4, stats.Buffered)

	got := r.Snapshot()
	require.Len(t, got, 4)
	for i, e := range got {
		assert.Equal(t, uint32(6+i), e.Amount)
	}
	assert.Len(t, r.Snapshot(), 4, "snapshot does not consume")
}

func TestRecorderDefaultsAndReset(t *testing.T) {
	t.Parallel()

	r := NewRecorder(0, logger.NewDiscard())
	assert.Equal(t, DefaultCapacity, r.Capacity())
	assert.Equal(t, ComponentTrace, r.Name())

	require.NoError(t, r.ProcessRecord(record(1, "comp/1")))
	r.Reset()
	assert.Equal(t, Stats{}, r.Stats())
	assert.Empty(t, r.Drain())
}

func TestRecorderDump(t *testing.T) {
	t.Parallel()

	r := NewRecorder(4, logger.NewDiscard())
	require.NoError(t, r.Add(record(5, "buffer/7")))

	var out bytes.Buffer
	require.NoError(t, r.Dump(&out))
	line := strings.TrimSpace(out.String())
	assert.Contains(t, line, "buffer_produce")
	assert.Contains(t, line, "buffer/7")
	assert.Contains(t, line, "amount=5")
	assert.Equal(t, 1, r.Stats().Buffered)
}

func TestRecorderAsBusConsumer(t *testing.T) {
	t.Parallel()

	log := logger.NewDiscard()
	r := NewRecorder(16, log)
	bus := notifier.NewBus(notifier.DefaultBusConfig(), log)
	require.NoError(t, bus.RegisterConsumer(r))

	for i := range 3 {
		require.True(t, bus.TryPublish(record(i, "buffer/1")))
	}
	require.NoError(t, bus.Shutdown(time.Second))

	assert.Equal(t, uint64(3), r.Stats().Recorded)
}
