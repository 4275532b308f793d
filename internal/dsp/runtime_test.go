package dsp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/topology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() *conf.Settings {
	return &conf.Settings{
		DSP: conf.DSPSettings{
			Cores:        2,
			IPCVersion:   4,
			PerfCounters: true,
			PeriodUS:     100,
		},
		Memory: conf.MemorySettings{
			RuntimeBytes: 1 << 16,
			SharedBytes:  1 << 16,
			DMABytes:     1 << 16,
		},
		Trace: conf.TraceSettings{Enabled: true, Capacity: 8192},
	}
}

const playbackYAML = `
name: playback
buffers:
  - id: 10
    size: 128
  - id: 11
    size: 256
components:
  - id: 1
    driver: wav_source
    pipeline: 1
    options:
      file: %q
      period_frames: "16"
  - id: 2
    driver: passthrough
    pipeline: 1
    core: 1
  - id: 3
    driver: wav_sink
    pipeline: 1
    core: 1
    options:
      file: %q
connections:
  - {from: 1, buffer: 10, to: 2}
  - {from: 2, buffer: 11, to: 3}
`

func writeInput(t *testing.T, path string, n int) []int {
	t.Helper()
	samples := make([]int, n)
	for i := range samples {
		samples[i] = (i*37)%2000 - 1000
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: 8000, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return samples
}

func playback(t *testing.T) (doc *topology.Document, samples []int, out string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out = filepath.Join(dir, "out.wav")
	samples = writeInput(t, in, 400)
	doc, err := topology.Parse(fmt.Appendf(nil, playbackYAML, in, out))
	require.NoError(t, err)
	return doc, samples, out
}

func readOutput(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.DSP.Cores = 0
	_, err := New(s, logger.NewDiscard())
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestRunPlaysTopologyAcrossCores(t *testing.T) {
	t.Parallel()

	doc, samples, out := playback(t)
	r, err := New(testSettings(), logger.NewDiscard())
	require.NoError(t, err)
	require.Len(t, r.Schedulers(), 2)

	require.NoError(t, r.Load(doc))
	assert.True(t, errors.IsCategory(r.Load(doc), errors.CategoryConflict))
	assert.Equal(t, 1, r.Schedulers()[0].Len())
	assert.Equal(t, 2, r.Schedulers()[1].Len())

	b10, ok := r.Graph().Buffer(10)
	require.True(t, ok)
	assert.True(t, b10.Shared(), "buffer crossing cores is shared")

	require.NoError(t, r.Run(context.Background(), nil, 200))
	for _, dev := range r.Graph().Components() {
		assert.Equal(t, component.StateReady, dev.State())
	}
	for _, ll := range r.Schedulers() {
		assert.Equal(t, uint64(200), ll.Stats().Ticks)
	}
	assert.Equal(t, samples, readOutput(t, out))

	require.NoError(t, r.Close())
	for _, s := range r.Heap().Stats() {
		assert.Zero(t, s.Used, s.Zone.String())
	}

	stats := r.Recorder().Stats()
	assert.Positive(t, stats.Recorded)
	var dump bytes.Buffer
	require.NoError(t, r.DumpTrace(&dump))
	assert.Contains(t, dump.String(), "buffer/10")
}

func TestRunWithMetrics(t *testing.T) {
	t.Parallel()

	doc, samples, out := playback(t)
	s := testSettings()
	s.Trace.Enabled = false
	s.Metrics = conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}

	r, err := New(s, logger.NewDiscard())
	require.NoError(t, err)
	require.NotNil(t, r.Metrics())
	assert.Nil(t, r.Recorder())
	require.NoError(t, r.DumpTrace(&bytes.Buffer{}))

	require.NoError(t, r.Load(doc))
	require.NoError(t, r.Run(context.Background(), nil, 200))
	assert.Equal(t, samples, readOutput(t, out))
	require.NoError(t, r.Close())

	families, err := r.Metrics().Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["dspcore_scheduler_ticks"])
	assert.True(t, names["dspcore_heap_bytes"])
	assert.True(t, names["dspcore_component_kcps"])
	assert.Positive(t, r.BusStats().RecordsProcessed)
}

func TestRunWithoutTopology(t *testing.T) {
	t.Parallel()

	r, err := New(testSettings(), logger.NewDiscard())
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	err = r.Run(context.Background(), nil, 1)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidState))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	doc, _, _ := playback(t)
	r, err := New(testSettings(), logger.NewDiscard())
	require.NoError(t, err)
	require.NoError(t, r.Load(doc))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx, nil, 0))
	for _, dev := range r.Graph().Components() {
		assert.Equal(t, component.StateReady, dev.State())
	}
	require.NoError(t, r.Close())
}

func TestLoadFailureKeepsRuntimeUsable(t *testing.T) {
	t.Parallel()

	doc, _, _ := playback(t)
	s := testSettings()
	s.Memory = conf.MemorySettings{RuntimeBytes: 64, SharedBytes: 64, DMABytes: 64}
	r, err := New(s, logger.NewDiscard())
	require.NoError(t, err)

	err = r.Load(doc)
	assert.True(t, errors.IsCategory(err, errors.CategoryOutOfMemory))
	assert.Nil(t, r.Graph())
	for _, ll := range r.Schedulers() {
		assert.Zero(t, ll.Len())
	}
	require.NoError(t, r.Close())
}

func TestCheck(t *testing.T) {
	t.Parallel()

	doc, _, _ := playback(t)

	res := Check(testSettings(), doc)
	assert.True(t, res.Valid)
	assert.False(t, res.HasIssues())

	s := testSettings()
	s.DSP.Cores = 1
	s.Memory = conf.MemorySettings{RuntimeBytes: 128}
	res = Check(s, doc)
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 2, "two components on core 1")
	assert.Len(t, res.Warnings, 1, "heap smaller than declared buffers")

	doc.Components = append(doc.Components, topology.ComponentSpec{ID: 9, Driver: "passthrough", Pipeline: 2})
	res = Check(testSettings(), doc)
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"component 9 is not connected to any buffer"}, res.Warnings)

	bad := testSettings()
	bad.DSP.PeriodUS = 0
	res = Check(bad, doc)
	assert.Equal(t, []string{"dsp.period_us must be between 1 and 100000"}, res.Errors)
}
