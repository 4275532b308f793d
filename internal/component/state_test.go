package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dspcore/internal/errors"
)

// pathTo is a trigger sequence from READY to each state.
var pathTo = map[State][]Trigger{
	StateReady:     nil,
	StatePrepare:   {TriggerPrepare},
	StatePreActive: {TriggerPrepare, TriggerPreStart},
	StateActive:    {TriggerPrepare, TriggerPreStart, TriggerStart},
	StatePaused:    {TriggerPrepare, TriggerPreStart, TriggerStart, TriggerPause},
}

func deviceIn(t *testing.T, s State, policy AlreadySetPolicy) *Device {
	t.Helper()
	d, _ := newTestDevice(t, Config{ID: 1}, policy)
	for _, cmd := range pathTo[s] {
		_, err := d.SetState(cmd)
		require.NoError(t, err)
	}
	require.Equal(t, s, d.State())
	return d
}

func TestOnlyPrepareLeavesReady(t *testing.T) {
	t.Parallel()

	for _, cmd := range []Trigger{TriggerStart, TriggerStop, TriggerPause, TriggerRelease, TriggerPreStart, TriggerPreRelease} {
		t.Run(cmd.String(), func(t *testing.T) {
			d := deviceIn(t, StateReady, PolicyIPC4)
			_, err := d.SetState(cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.True(t, errors.IsCategory(err, errors.CategoryInvalidState))
			assert.Equal(t, StateReady, d.State())
		})
	}

	d := deviceIn(t, StateReady, PolicyIPC4)
	status, err := d.SetState(TriggerPrepare)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, StatePrepare, d.State())
}

func TestResetAlwaysSucceeds(t *testing.T) {
	t.Parallel()

	for s := range stateCount {
		for _, cmd := range []Trigger{TriggerReset, TriggerXrun} {
			t.Run(s.String()+"/"+cmd.String(), func(t *testing.T) {
				d := deviceIn(t, s, PolicyIPC4)
				_, err := d.SetState(cmd)
				require.NoError(t, err)
				assert.Equal(t, StateReady, d.State())
			})
		}
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	type key struct {
		from State
		cmd  Trigger
	}
	valid := map[key]State{
		{StateReady, TriggerPrepare}:     StatePrepare,
		{StatePrepare, TriggerPreStart}:  StatePreActive,
		{StatePreActive, TriggerStart}:   StateActive,
		{StatePreActive, TriggerRelease}: StateActive,
		{StateActive, TriggerPause}:      StatePaused,
		{StatePaused, TriggerPreRelease}: StatePreActive,
		{StateActive, TriggerStop}:       StateReady,
		{StatePaused, TriggerStop}:       StateReady,
		{StatePrepare, TriggerReset}:     StateReady,
		{StatePreActive, TriggerReset}:   StateReady,
		{StateActive, TriggerReset}:      StateReady,
		{StatePaused, TriggerReset}:      StateReady,
		{StatePrepare, TriggerXrun}:      StateReady,
		{StatePreActive, TriggerXrun}:    StateReady,
		{StateActive, TriggerXrun}:       StateReady,
		{StatePaused, TriggerXrun}:       StateReady,
	}

	for from := range stateCount {
		for cmd := range triggerCount {
			k := key{from, cmd}
			t.Run(from.String()+"/"+cmd.String(), func(t *testing.T) {
				d := deviceIn(t, from, PolicyIPC4)
				status, err := d.SetState(cmd)

				if next, ok := valid[k]; ok {
					require.NoError(t, err)
					assert.Equal(t, StatusOK, status)
					assert.Equal(t, next, d.State())
					return
				}
				if cmd.Target() == from && cmd != TriggerStop {
					require.NoError(t, err)
					assert.Equal(t, StatusAlreadySet, status)
					assert.Equal(t, from, d.State())
					return
				}
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidState)
				assert.Equal(t, from, d.State())
			})
		}
	}
}

func TestAlreadySetPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy AlreadySetPolicy
		want   Status
	}{
		{"ipc4 reports already set", PolicyIPC4, StatusAlreadySet},
		{"ipc3 reports ok", PolicyIPC3, StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deviceIn(t, StateActive, tt.policy)
			for _, cmd := range []Trigger{TriggerStart, TriggerRelease} {
				status, err := d.SetState(cmd)
				require.NoError(t, err)
				assert.Equal(t, tt.want, status)
				assert.Equal(t, StateActive, d.State())
			}

			d = deviceIn(t, StateReady, tt.policy)
			status, err := d.SetState(TriggerReset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)

			_, err = d.SetState(TriggerStop)
			assert.ErrorIs(t, err, ErrInvalidState, "stop from ready is not already set")
		})
	}
}

func TestUnknownTriggerRejected(t *testing.T) {
	t.Parallel()

	d := deviceIn(t, StateReady, PolicyIPC4)
	_, err := d.SetState(Trigger(42))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateReady, d.State())
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	cmd, err := ParseTrigger("pre_start")
	require.NoError(t, err)
	assert.Equal(t, TriggerPreStart, cmd)
	_, err = ParseTrigger("launch")
	assert.Error(t, err)

	p, err := ParseAlreadySetPolicy("IPC3")
	require.NoError(t, err)
	assert.Equal(t, PolicyIPC3, p)
	p, err = ParseAlreadySetPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyIPC4, p)
	_, err = ParseAlreadySetPolicy("ipc5")
	assert.Error(t, err)

	dom, err := ParseDomain("dp")
	require.NoError(t, err)
	assert.Equal(t, DomainDP, dom)
	_, err = ParseDomain("edf")
	assert.Error(t, err)

	assert.Equal(t, "PRE_ACTIVE", StatePreActive.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.Equal(t, "XRUN", TriggerXrun.String())
}
