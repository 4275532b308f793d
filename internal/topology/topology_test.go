package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/cache"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/drivers"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/irq"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/memory"
	"github.com/tphakala/dspcore/internal/notifier"
)

type testRig struct {
	deps     Deps
	heap     *memory.Heap
	notifier *notifier.Notifier
}

func newTestRig(t *testing.T, cores int, heapBytes uint64) testRig {
	t.Helper()
	log := logger.NewDiscard()
	n := notifier.New(log)
	heap := memory.NewHeap(memory.Config{RuntimeBytes: heapBytes, SharedBytes: heapBytes, DMABytes: heapBytes})

	reg := component.NewRegistry(log)
	reg.Init()
	require.NoError(t, drivers.Register(reg))

	return testRig{
		deps: Deps{
			Registry:     reg,
			BufferEnv:    &buffer.Env{Heap: heap, Cache: &cache.Counting{}, Notifier: n, Log: log},
			ComponentEnv: &component.Env{Notifier: n, Log: log},
			Guard:        irq.New(cores),
			Log:          log,
		},
		heap:     heap,
		notifier: n,
	}
}

func heapUsed(h *memory.Heap) uint64 {
	var used uint64
	for _, s := range h.Stats() {
		used += s.Used
	}
	return used
}

func writeWAV(t *testing.T, path string, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: 16000, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

const playbackYAML = `
name: playback
buffers:
  - id: 10
    size: 128
  - id: 11
    size: 256
    min_size: 64
    caps: [ram, cache]
components:
  - id: 1
    driver: wav_source
    pipeline: 1
    options:
      file: %q
      period_frames: "16"
  - id: 2
    driver: %s
    pipeline: 1
  - id: 3
    driver: wav_sink
    pipeline: 1
    options:
      file: %q
connections:
  - {from: 1, buffer: 10, to: 2}
  - {from: 2, buffer: 11, to: 3}
`

func playbackDoc(t *testing.T, in, out string) *Document {
	t.Helper()
	doc, err := Parse(fmt.Appendf(nil, playbackYAML, in, drivers.PassthroughUUID, out))
	require.NoError(t, err)
	return doc
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("buffers:\n  - id: 1\n    sise: 10\n"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	doc, err := Parse([]byte("buffers:\n  - id: 1\n    size: 10\n    params: {format: s16_le, rate: 8000, channels: 2}\n"))
	require.NoError(t, err)
	require.Len(t, doc.Buffers, 1)
	p, err := doc.Buffers[0].Params.Params()
	require.NoError(t, err)
	assert.Equal(t, audiostream.FormatS16LE, p.FrameFmt)
	assert.Equal(t, audiostream.FormatS16LE, p.ValidSampleFmt)
	assert.Equal(t, [audiostream.MaxChannels]uint8{0, 1}, p.ChMap)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tplg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffers:\n  - {id: 1, size: 16}\n"), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 2, 1<<16)
	valid := func() *Document {
		return &Document{
			Buffers: []BufferSpec{{ID: 1, Size: 64}},
			Components: []ComponentSpec{
				{ID: 1, Driver: "passthrough"},
				{ID: 2, Driver: drivers.PassthroughUUID.String(), Core: 1},
			},
			Connections: []Connection{{From: 1, Buffer: 1, To: 2}},
		}
	}

	tests := []struct {
		name   string
		mutate func(d *Document)
		want   string
	}{
		{"valid", func(*Document) {}, ""},
		{"zero buffer id", func(d *Document) { d.Buffers[0].ID = 0 }, "id must be positive"},
		{"duplicate buffer", func(d *Document) { d.Buffers = append(d.Buffers, BufferSpec{ID: 1, Size: 8}) }, "duplicate id"},
		{"zero size", func(d *Document) { d.Buffers[0].Size = 0 }, "size must be positive"},
		{"min above size", func(d *Document) { d.Buffers[0].MinSize = 65 }, "exceeds size"},
		{"align", func(d *Document) { d.Buffers[0].Align = 12 }, "not a power of two"},
		{"caps", func(d *Document) { d.Buffers[0].Caps = []string{"flash"} }, "unknown memory capability"},
		{"format", func(d *Document) { d.Buffers[0].Params = &ParamsSpec{Format: "S20", Rate: 1, Channels: 1} }, "unknown frame format"},
		{"channels", func(d *Document) { d.Buffers[0].Params = &ParamsSpec{Format: "S16_LE", Channels: 9} }, "channels"},
		{"core", func(d *Document) { d.Components[1].Core = 2 }, "out of range"},
		{"domain", func(d *Document) { d.Components[0].Domain = "edf" }, "processing domain"},
		{"no driver", func(d *Document) { d.Components[0].Driver = "" }, "driver is required"},
		{"unknown driver", func(d *Document) { d.Components[0].Driver = "mixer" }, `driver "mixer"`},
		{"unknown buffer", func(d *Document) { d.Connections[0].Buffer = 7 }, "unknown buffer"},
		{"unknown component", func(d *Document) { d.Connections[0].To = 9 }, "unknown component"},
		{"dangling", func(d *Document) { d.Connections = append(d.Connections, Connection{Buffer: 1}) }, "needs from or to"},
		{"two producers", func(d *Document) { d.Connections = append(d.Connections, Connection{From: 2, Buffer: 1}) }, "already has a producer"},
		{"two consumers", func(d *Document) { d.Connections = append(d.Connections, Connection{Buffer: 1, To: 1}) }, "already has a consumer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := valid()
			tt.mutate(doc)
			err := doc.Validate(2, rig.deps.Registry)
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildRunTeardown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav")
	samples := make([]int, 300)
	for i := range samples {
		samples[i] = i*3 - 400
	}
	writeWAV(t, in, samples)

	rig := newTestRig(t, 1, 1<<16)
	g, err := Build(playbackDoc(t, in, out), rig.deps)
	require.NoError(t, err)

	assert.Equal(t, "playback", g.Name())
	require.Len(t, g.Components(), 3)
	require.Len(t, g.Buffers(), 2)
	p, err := g.Pipeline(1)
	require.NoError(t, err)
	assert.Len(t, p.Components, 3)
	assert.Len(t, p.Buffers, 2)

	b11, ok := g.Buffer(11)
	require.True(t, ok)
	assert.Equal(t, uint32(256), b11.Size())
	assert.Equal(t, "buffer/11", b11.String())

	require.NoError(t, g.Start(nil))
	for _, dev := range g.Components() {
		assert.Equal(t, component.StateActive, dev.State())
	}

	for range 100 {
		for _, dev := range g.Components() {
			require.NoError(t, dev.Copy(0))
		}
	}
	require.NoError(t, g.Stop())
	for _, dev := range g.Components() {
		assert.Equal(t, component.StateReady, dev.State())
	}
	assert.False(t, b11.ParamsConfigured(), "reset opens a new params epoch")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	got, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, samples, got.Data)

	g.Teardown()
	assert.Zero(t, heapUsed(rig.heap))
	assert.Empty(t, g.Components())
}

func TestBuildFailureReleasesEverything(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 1, 256)
	doc := &Document{
		Buffers: []BufferSpec{{ID: 1, Size: 128}, {ID: 2, Size: 512}},
		Components: []ComponentSpec{
			{ID: 1, Driver: "passthrough"},
		},
		Connections: []Connection{{From: 1, Buffer: 1}},
	}

	g, err := Build(doc, rig.deps)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, buffer.ErrOutOfMemory)
	assert.Zero(t, heapUsed(rig.heap))
}

func TestCrossCoreBufferIsShared(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 2, 1<<16)
	doc := &Document{
		Buffers: []BufferSpec{{ID: 1, Size: 64}, {ID: 2, Size: 64}},
		Components: []ComponentSpec{
			{ID: 1, Driver: "passthrough", Core: 0},
			{ID: 2, Driver: "passthrough", Core: 1},
			{ID: 3, Driver: "passthrough", Core: 1},
		},
		Connections: []Connection{
			{From: 1, Buffer: 1, To: 2},
			{From: 2, Buffer: 2, To: 3},
		},
	}
	g, err := Build(doc, rig.deps)
	require.NoError(t, err)
	defer g.Teardown()

	b1, _ := g.Buffer(1)
	b2, _ := g.Buffer(2)
	assert.True(t, b1.Shared())
	assert.False(t, b2.Shared())

	c1, _ := g.Component(1)
	c3, _ := g.Component(3)
	assert.True(t, c1.Shared())
	assert.False(t, c3.Shared())
}

func TestTriggerOrder(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 1, 1<<16)
	doc := &Document{
		Buffers: []BufferSpec{
			{ID: 1, Size: 64, Params: &ParamsSpec{Format: "S16_LE", Rate: 8000, Channels: 1}},
			{ID: 2, Size: 64},
			{ID: 3, Size: 64},
		},
		Components: []ComponentSpec{
			{ID: 1, Driver: "passthrough", Pipeline: 5},
			{ID: 2, Driver: "passthrough", Pipeline: 5},
		},
		Connections: []Connection{
			{Buffer: 1, To: 1},
			{From: 1, Buffer: 2, To: 2},
			{From: 2, Buffer: 3},
		},
	}
	g, err := Build(doc, rig.deps)
	require.NoError(t, err)
	defer g.Teardown()

	var order []string
	require.NoError(t, rig.notifier.Register(t, nil, notifier.ComponentState, func(_ notifier.EventID, data any) {
		sc := data.(*component.StateChange)
		order = append(order, fmt.Sprintf("%d:%s", sc.Device.ID(), sc.To))
	}))

	require.NoError(t, g.Prepare(5, nil))
	require.NoError(t, g.Trigger(5, component.TriggerStart))
	require.NoError(t, g.Trigger(5, component.TriggerStop))
	assert.Equal(t, []string{
		"1:PREPARE", "2:PREPARE",
		"1:ACTIVE", "2:ACTIVE",
		"2:PREPARE", "1:PREPARE",
	}, order)

	err = g.Trigger(5, component.TriggerRelease)
	assert.ErrorIs(t, err, component.ErrInvalidState)

	_, err = g.Pipeline(6)
	assert.True(t, errors.IsNotFound(err))
}

func TestPrepareWithHostParams(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 1, 1<<16)
	doc := &Document{
		Buffers:     []BufferSpec{{ID: 1, Size: 64}, {ID: 2, Size: 64}},
		Components:  []ComponentSpec{{ID: 1, Driver: "passthrough", Pipeline: 1}},
		Connections: []Connection{{Buffer: 1, To: 1}, {From: 1, Buffer: 2}},
	}
	g, err := Build(doc, rig.deps)
	require.NoError(t, err)
	defer g.Teardown()

	params := &audiostream.Params{FrameFmt: audiostream.FormatS32LE, Rate: 48000, Channels: 2}
	require.NoError(t, g.Prepare(1, params))
	for _, b := range g.Buffers() {
		assert.True(t, b.ParamsMatch(params, buffer.MatchAll))
	}

	require.NoError(t, g.Reset(1))
	for _, b := range g.Buffers() {
		assert.False(t, b.ParamsConfigured())
	}
}
