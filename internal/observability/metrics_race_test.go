package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dspcore/internal/component"
)

// Each Metrics owns a private registry, so runtimes created in parallel
// never collide on collector registration.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const n = 32
	results := make([]*Metrics, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			m.Dataplane.RecordComponentState("comp/1", component.StateActive)
			results[i] = m
		})
	}
	wg.Wait()

	for _, m := range results {
		require.NotNil(t, m)
		assert.NotNil(t, m.Dataplane)
		assert.InDelta(t, float64(component.StateActive),
			gaugeValue(t, m.Registry(), "dspcore_component_state", map[string]string{"component": "comp/1"}), 0)
	}
}
