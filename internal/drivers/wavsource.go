package drivers

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// wavSource plays a PCM WAV file into its sink buffer. The file decides
// the stream format.
//
// Options:
//
//	file           path of the WAV file (required)
//	loop           rewind at end of file instead of going silent
//	period_frames  most frames produced per copy; 0 fills the sink
type wavSource struct {
	component.BaseDriver

	path         string
	loop         bool
	periodFrames uint32

	file    *os.File
	dec     *wav.Decoder
	params  audiostream.Params
	pcm     *audio.IntBuffer
	scratch []byte
	eof     bool
	frames  uint64
}

func newWAVSource(dev *component.Device) (component.Driver, error) {
	path, err := stringOption(dev, "file")
	if err != nil {
		return nil, err
	}
	loop, err := boolOption(dev, "loop", false)
	if err != nil {
		return nil, err
	}
	period, err := uint32Option(dev, "period_frames", 0)
	if err != nil {
		return nil, err
	}
	return &wavSource{path: path, loop: loop, periodFrames: period}, nil
}

// open opens the file and reads its header. It is a no-op when the file
// is already open.
func (s *wavSource) open() error {
	if s.dec != nil {
		return nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fileError(err, "open_wav", s.path)
	}

	dec, err := decoderAt(file, s.path)
	if err != nil {
		_ = file.Close()
		return err
	}

	ff, err := formatForDepth(int(dec.BitDepth))
	if err != nil {
		_ = file.Close()
		return err
	}

	s.file = file
	s.dec = dec
	s.params = audiostream.Params{
		FrameFmt:       ff,
		ValidSampleFmt: ff,
		Rate:           dec.SampleRate,
		Channels:       uint32(dec.NumChans),
	}
	for i := range min(s.params.Channels, audiostream.MaxChannels) {
		s.params.ChMap[i] = uint8(i)
	}
	s.pcm = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(dec.NumChans),
			SampleRate:  int(dec.SampleRate),
		},
		SourceBitDepth: int(dec.BitDepth),
	}
	s.eof = false
	return nil
}

// decoderAt reads the WAV header from the current position of file.
func decoderAt(file *os.File, path string) (*wav.Decoder, error) {
	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.Newf("invalid WAV file: %s", path).
			Component(ComponentDrivers).
			Category(errors.CategoryFileParsing).
			Context("file_path", path).
			Build()
	}
	if err := dec.Err(); err != nil {
		return nil, errors.New(err).
			Component(ComponentDrivers).
			Category(errors.CategoryFileParsing).
			Context("file_path", path).
			Build()
	}
	return dec, nil
}

func (s *wavSource) close() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = nil
	s.dec = nil
}

// Params applies the file format to the sink buffers. Host params, when
// given, must agree with the file on rate and channel count.
func (s *wavSource) Params(dev *component.Device, p *audiostream.Params) error {
	if err := s.open(); err != nil {
		return err
	}
	if p != nil && (p.Rate != s.params.Rate || p.Channels != s.params.Channels) {
		return errors.Newf("wav source %s is %d Hz %d ch, pipeline wants %d Hz %d ch",
			s.path, s.params.Rate, s.params.Channels, p.Rate, p.Channels).
			Component(ComponentDrivers).
			Category(errors.CategoryInvalidParams).
			Context("comp_id", dev.ID()).
			Build()
	}
	if err := component.VerifyParams(dev, &s.params); err != nil {
		return err
	}
	for _, sink := range dev.Sinks() {
		if !sink.ParamsMatch(&s.params, buffer.MatchAll) {
			return errors.Newf("wav source %s format differs from sink %s", s.path, sink).
				Component(ComponentDrivers).
				Category(errors.CategoryInvalidParams).
				Context("comp_id", dev.ID()).
				Build()
		}
	}
	return nil
}

func (s *wavSource) Prepare(dev *component.Device) error {
	if n := len(dev.Sinks()); n != 1 || len(dev.Sources()) != 0 {
		return errors.Newf("wav source needs exactly one sink and no source, has %d and %d",
			n, len(dev.Sources())).
			Component(ComponentDrivers).
			Category(errors.CategoryTopology).
			Context("comp_id", dev.ID()).
			Build()
	}
	if err := s.Params(dev, nil); err != nil {
		return err
	}
	dev.Logger().Info("wav source opened",
		logger.String("file_path", s.path),
		logger.Uint32("rate", s.params.Rate),
		logger.Uint32("channels", s.params.Channels),
		logger.String("format", s.params.FrameFmt.String()))
	return nil
}

func (s *wavSource) Copy(dev *component.Device) error {
	if s.dec == nil {
		return notPrepared(dev)
	}
	if s.eof {
		return nil
	}

	sink := dev.Sinks()[0]
	fb := sink.Stream().FrameBytes()
	frames := sink.FreeSize() / fb
	if s.periodFrames > 0 {
		frames = min(frames, s.periodFrames)
	}
	if frames == 0 {
		return nil
	}

	ch := int(s.params.Channels)
	s.pcm.Data = grow(s.pcm.Data, int(frames)*ch)
	n, err := s.dec.PCMBuffer(s.pcm)
	if err != nil && !errors.Is(err, io.EOF) {
		return fileError(err, "decode_wav", s.path)
	}

	got := uint32(n / ch)
	if got == 0 {
		return s.endOfFile(dev)
	}

	bytes := got * fb
	s.scratch = grow(s.scratch, int(bytes))
	packSamples(s.scratch, s.pcm.Data[:int(got)*ch], s.params.FrameFmt)

	out, err := sink.GetBuffer(bytes)
	if err != nil {
		return err
	}
	out.CopyIn(s.scratch)
	s.frames += uint64(got)
	return sink.CommitBuffer(bytes)
}

// endOfFile rewinds when looping, otherwise marks the source drained.
func (s *wavSource) endOfFile(dev *component.Device) error {
	if !s.loop {
		s.eof = true
		dev.Logger().Info("wav source reached end of file",
			logger.String("file_path", s.path),
			logger.Uint64("frames", s.frames))
		return nil
	}

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fileError(err, "rewind_wav", s.path)
	}
	dec, err := decoderAt(s.file, s.path)
	if err != nil {
		return err
	}
	s.dec = dec
	return nil
}

func (s *wavSource) Reset(*component.Device) error {
	s.close()
	s.eof = false
	s.frames = 0
	return nil
}

func (s *wavSource) Free(*component.Device) {
	s.close()
}
