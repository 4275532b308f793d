package drivers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/cache"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/irq"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/memory"
	"github.com/tphakala/dspcore/internal/notifier"
)

// rig is a single-core graph under construction.
type rig struct {
	reg     *component.Registry
	table   *component.Table
	guard   *irq.Guard
	bufEnv  *buffer.Env
	compEnv *component.Env
}

func newRig(t *testing.T) *rig {
	t.Helper()
	log := logger.NewDiscard()
	n := notifier.New(log)

	reg := component.NewRegistry(log)
	reg.Init()
	require.NoError(t, Register(reg))

	return &rig{
		reg:   reg,
		table: component.NewTable(),
		guard: irq.New(1),
		bufEnv: &buffer.Env{
			Heap:     memory.NewHeap(memory.Config{RuntimeBytes: 1 << 20, SharedBytes: 1 << 20, DMABytes: 1 << 20}),
			Cache:    &cache.Counting{},
			Notifier: n,
			Log:      log,
		},
		compEnv: &component.Env{Notifier: n, Log: log},
	}
}

func (r *rig) device(t *testing.T, id uint32, driver uuid.UUID, opts map[string]string) *component.Device {
	t.Helper()
	dev, err := r.reg.Create(driver, component.Config{ID: id, Options: opts}, r.compEnv)
	require.NoError(t, err)
	_, err = r.table.Add(dev)
	require.NoError(t, err)
	return dev
}

func (r *rig) buffer(t *testing.T, size uint32) *buffer.Buffer {
	t.Helper()
	b, err := buffer.Alloc(r.bufEnv, size, memory.CapRAM, 0, 0, false)
	require.NoError(t, err)
	t.Cleanup(b.Free)
	return b
}

// connect wires from -> b -> to; either end may be nil.
func (r *rig) connect(t *testing.T, from *component.Device, b *buffer.Buffer, to *component.Device) {
	t.Helper()
	held := r.guard.Disable(0)
	defer held.Enable()
	if from != nil {
		require.NoError(t, from.BindBuffer(held, b, buffer.CompToBuffer))
	}
	if to != nil {
		require.NoError(t, to.BindBuffer(held, b, buffer.BufferToComp))
	}
}

func start(t *testing.T, devs ...*component.Device) {
	t.Helper()
	for _, d := range devs {
		require.NoError(t, d.Prepare())
		_, err := d.Trigger(component.TriggerPrepare)
		require.NoError(t, err)
		_, err = d.Trigger(component.TriggerStart)
		require.NoError(t, err)
	}
}

func writeWAV(t *testing.T, path string, rate, depth, channels int, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, depth, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: depth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func readWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return dec, buf.Data
}

func ramp(n, step int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = (i - n/2) * step
	}
	return s
}

func TestRegister(t *testing.T) {
	t.Parallel()

	reg := component.NewRegistry(logger.NewDiscard())
	reg.Init()
	require.NoError(t, Register(reg))

	for _, info := range Infos() {
		got, err := reg.Lookup(info.UUID)
		require.NoError(t, err)
		assert.Equal(t, info.Name, got.Name)
	}

	err := Register(reg)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestDriverOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		driver  uuid.UUID
		opts    map[string]string
		wantErr bool
	}{
		{"source without file", WAVSourceUUID, nil, true},
		{"source bad loop", WAVSourceUUID, map[string]string{"file": "x.wav", "loop": "sometimes"}, true},
		{"source bad period", WAVSourceUUID, map[string]string{"file": "x.wav", "period_frames": "-1"}, true},
		{"source ok", WAVSourceUUID, map[string]string{"file": "x.wav", "loop": "true", "period_frames": "48"}, false},
		{"sink without file", WAVSinkUUID, map[string]string{"file": ""}, true},
		{"sink ok", WAVSinkUUID, map[string]string{"file": "out.wav"}, false},
		{"passthrough", PassthroughUUID, nil, false},
	}

	r := newRig(t)
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.reg.Create(tt.driver, component.Config{ID: uint32(i), Options: tt.opts}, r.compEnv)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryDriver))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPackUnpack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  audiostream.FrameFormat
		depth   int
		samples []int
	}{
		{audiostream.FormatS16LE, 16, []int{0, 1, -1, 32767, -32768}},
		{audiostream.FormatS24_4LE, 24, []int{0, 1, -1, 8388607, -8388608}},
		{audiostream.FormatS32LE, 32, []int{0, 1, -1, 2147483647, -2147483648}},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			f, err := formatForDepth(tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.format, f)
			d, err := depthForFormat(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.depth, d)

			raw := make([]byte, len(tt.samples)*int(tt.format.SampleBytes()))
			packSamples(raw, tt.samples, tt.format)
			got := make([]int, len(tt.samples))
			unpackSamples(got, raw, tt.format)
			assert.Equal(t, tt.samples, got)
		})
	}

	_, err := formatForDepth(8)
	require.Error(t, err)
	_, err = depthForFormat(audiostream.FormatFloat)
	require.Error(t, err)
}

func TestWAVPipelineRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out", "out.wav")
	input := ramp(2*1000, 7)
	writeWAV(t, in, 48000, 16, 2, input)

	r := newRig(t)
	src := r.device(t, 1, WAVSourceUUID, map[string]string{"file": in, "period_frames": "48"})
	pass := r.device(t, 2, PassthroughUUID, nil)
	sink := r.device(t, 3, WAVSinkUUID, map[string]string{"file": out})

	a := r.buffer(t, 256)
	b := r.buffer(t, 384)
	r.connect(t, src, a, pass)
	r.connect(t, pass, b, sink)

	start(t, src, pass, sink)
	assert.Equal(t, uint32(4), b.Stream().FrameBytes(), "passthrough propagates the file format")

	for range 200 {
		for _, d := range []*component.Device{src, pass, sink} {
			require.NoError(t, d.Copy(0))
		}
	}
	assert.Zero(t, a.Stream().Avail())
	assert.Zero(t, b.Stream().Avail())

	require.NoError(t, sink.Reset())

	dec, got := readWAV(t, out)
	assert.Equal(t, uint32(48000), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, input, got)
}

func TestWAVSourceLoop(t *testing.T) {
	t.Parallel()

	in := filepath.Join(t.TempDir(), "loop.wav")
	writeWAV(t, in, 16000, 16, 1, ramp(10, 100))

	r := newRig(t)
	src := r.device(t, 1, WAVSourceUUID, map[string]string{"file": in, "loop": "true"})
	a := r.buffer(t, 64)
	r.connect(t, src, a, nil)
	start(t, src)

	require.NoError(t, src.Copy(0))
	assert.Equal(t, uint32(20), a.Stream().Avail())

	// end of file: rewinds without producing
	require.NoError(t, src.Copy(0))
	assert.Equal(t, uint32(20), a.Stream().Avail())

	require.NoError(t, src.Copy(0))
	assert.Equal(t, uint32(40), a.Stream().Avail())
}

func TestWAVSourceStopsAtEOF(t *testing.T) {
	t.Parallel()

	in := filepath.Join(t.TempDir(), "once.wav")
	writeWAV(t, in, 16000, 24, 1, ramp(4, 1000))

	r := newRig(t)
	src := r.device(t, 1, WAVSourceUUID, map[string]string{"file": in})
	a := r.buffer(t, 64)
	r.connect(t, src, a, nil)
	start(t, src)

	assert.Equal(t, audiostream.FormatS24_4LE, a.Stream().FrameFmt())
	for range 5 {
		require.NoError(t, src.Copy(0))
	}
	assert.Equal(t, uint32(16), a.Stream().Avail())
	assert.True(t, src.Driver().(*wavSource).eof)

	// reset closes the file; prepare reopens from the start
	require.NoError(t, src.Reset())
	a.Reset()
	require.NoError(t, src.Prepare())
	require.NoError(t, src.Copy(0))
	assert.Equal(t, uint32(16), a.Stream().Avail())
}

func TestWAVSourceRejectsMismatchedParams(t *testing.T) {
	t.Parallel()

	in := filepath.Join(t.TempDir(), "in.wav")
	writeWAV(t, in, 16000, 16, 1, ramp(4, 1))

	r := newRig(t)
	src := r.device(t, 1, WAVSourceUUID, map[string]string{"file": in})
	a := r.buffer(t, 64)
	r.connect(t, src, a, nil)

	err := src.Params(&audiostream.Params{FrameFmt: audiostream.FormatS16LE, Rate: 48000, Channels: 1})
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidParams))

	// buffer already configured in this epoch with another format
	require.NoError(t, a.SetParams(&audiostream.Params{FrameFmt: audiostream.FormatS32LE, Rate: 16000, Channels: 1}, false))
	err = src.Prepare()
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidParams))
}

func TestWAVSourceMissingFile(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	src := r.device(t, 1, WAVSourceUUID, map[string]string{"file": filepath.Join(t.TempDir(), "nope.wav")})
	r.connect(t, src, r.buffer(t, 64), nil)

	err := src.Prepare()
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestPassthroughPrepare(t *testing.T) {
	t.Parallel()

	s16 := &audiostream.Params{FrameFmt: audiostream.FormatS16LE, Rate: 48000, Channels: 2}

	t.Run("no source", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		pass := r.device(t, 1, PassthroughUUID, nil)
		r.connect(t, pass, r.buffer(t, 64), nil)
		assert.True(t, errors.IsCategory(pass.Prepare(), errors.CategoryTopology))
	})

	t.Run("source without params", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		pass := r.device(t, 1, PassthroughUUID, nil)
		r.connect(t, nil, r.buffer(t, 64), pass)
		r.connect(t, pass, r.buffer(t, 64), nil)
		assert.True(t, errors.IsCategory(pass.Prepare(), errors.CategoryInvalidParams))
	})

	t.Run("propagates to every sink", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		pass := r.device(t, 1, PassthroughUUID, nil)
		in := r.buffer(t, 64)
		require.NoError(t, in.SetParams(s16, false))
		outs := []*buffer.Buffer{r.buffer(t, 64), r.buffer(t, 128)}
		r.connect(t, nil, in, pass)
		for _, o := range outs {
			r.connect(t, pass, o, nil)
		}
		require.NoError(t, pass.Prepare())
		for _, o := range outs {
			assert.True(t, o.ParamsMatch(s16, buffer.MatchAll))
		}
	})

	t.Run("sink format differs", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		pass := r.device(t, 1, PassthroughUUID, nil)
		in, out := r.buffer(t, 64), r.buffer(t, 64)
		require.NoError(t, in.SetParams(s16, false))
		mono := *s16
		mono.Channels = 1
		require.NoError(t, out.SetParams(&mono, false))
		r.connect(t, nil, in, pass)
		r.connect(t, pass, out, nil)
		assert.True(t, errors.IsCategory(pass.Prepare(), errors.CategoryInvalidParams))
	})
}

func TestPassthroughCopyLimitedBySmallestSink(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	pass := r.device(t, 1, PassthroughUUID, nil)
	in := r.buffer(t, 64)
	small, large := r.buffer(t, 16), r.buffer(t, 64)
	r.connect(t, nil, in, pass)
	r.connect(t, pass, small, nil)
	r.connect(t, pass, large, nil)
	require.NoError(t, in.SetParams(&audiostream.Params{FrameFmt: audiostream.FormatS16LE, Rate: 8000, Channels: 1}, false))
	start(t, pass)

	w, err := in.GetBuffer(40)
	require.NoError(t, err)
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	w.CopyIn(payload)
	require.NoError(t, in.CommitBuffer(40))

	require.NoError(t, pass.Copy(0))
	assert.Equal(t, uint32(24), in.Stream().Avail())
	assert.Equal(t, uint32(16), small.Stream().Avail())
	assert.Equal(t, uint32(16), large.Stream().Avail())

	got := make([]byte, 16)
	rd, err := large.GetData(16)
	require.NoError(t, err)
	rd.CopyOut(got)
	assert.Equal(t, payload[:16], got)

	// small is full: nothing moves
	require.NoError(t, pass.Copy(0))
	assert.Equal(t, uint32(24), in.Stream().Avail())
}

func TestCopyBeforePrepare(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	src := r.device(t, 1, WAVSourceUUID, map[string]string{"file": "unused.wav"})
	sink := r.device(t, 2, WAVSinkUUID, map[string]string{"file": "unused.wav"})

	assert.True(t, errors.IsCategory(src.Copy(0), errors.CategoryInvalidState))
	assert.True(t, errors.IsCategory(sink.Copy(0), errors.CategoryInvalidState))
}

func TestWAVSinkRejectsFloat(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	sink := r.device(t, 1, WAVSinkUUID, map[string]string{"file": filepath.Join(t.TempDir(), "f.wav")})
	in := r.buffer(t, 64)
	require.NoError(t, in.SetParams(&audiostream.Params{FrameFmt: audiostream.FormatFloat, Rate: 8000, Channels: 1}, false))
	r.connect(t, nil, in, sink)

	assert.True(t, errors.IsCategory(sink.Prepare(), errors.CategoryInvalidParams))
}
