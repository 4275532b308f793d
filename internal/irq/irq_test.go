package irq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeldToken(t *testing.T) {
	t.Parallel()

	g := New(2)
	assert.Equal(t, 2, g.Cores())

	var zero Held
	assert.False(t, zero.Valid())
	assert.False(t, zero.Covers(0))

	h := g.Disable(1)
	assert.True(t, h.Valid())
	assert.Equal(t, 1, h.Core())
	assert.True(t, h.Covers(1))
	assert.False(t, h.Covers(0))
	h.Enable()
}

func TestDisableExcludesSameCore(t *testing.T) {
	t.Parallel()

	g := New(2)
	h := g.Disable(0)

	// another core is independent
	other := g.Disable(1)
	other.Enable()

	entered := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h2 := g.Disable(0)
		close(entered)
		h2.Enable()
	}()

	select {
	case <-entered:
		t.Fatal("second Disable on the same core did not wait")
	case <-time.After(20 * time.Millisecond):
	}

	h.Enable()
	wg.Wait()
	select {
	case <-entered:
	default:
		t.Fatal("waiter never entered")
	}
}

func TestDisableOutOfRange(t *testing.T) {
	t.Parallel()

	g := New(0)
	require.Equal(t, 1, g.Cores())
	assert.Panics(t, func() { g.Disable(1) })
	assert.Panics(t, func() { g.Disable(-1) })
}
