package drivers

import (
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// wavSink records its source buffer into a PCM WAV file. The file is
// created on Prepare in the source buffer's format and finalised on
// Reset or Free.
//
// Options:
//
//	file  path of the WAV file to write (required)
type wavSink struct {
	component.BaseDriver

	path string

	file    *os.File
	enc     *wav.Encoder
	format  audiostream.FrameFormat
	pcm     *audio.IntBuffer
	scratch []byte
	frames  uint64
}

func newWAVSink(dev *component.Device) (component.Driver, error) {
	path, err := stringOption(dev, "file")
	if err != nil {
		return nil, err
	}
	return &wavSink{path: path}, nil
}

func (s *wavSink) Prepare(dev *component.Device) error {
	if n := len(dev.Sources()); n != 1 || len(dev.Sinks()) != 0 {
		return errors.Newf("wav sink needs exactly one source and no sink, has %d and %d",
			n, len(dev.Sinks())).
			Component(ComponentDrivers).
			Category(errors.CategoryTopology).
			Context("comp_id", dev.ID()).
			Build()
	}
	if s.enc != nil {
		return nil
	}

	src := dev.Sources()[0]
	if !src.ParamsConfigured() {
		return errors.Newf("wav sink source %s has no params", src).
			Component(ComponentDrivers).
			Category(errors.CategoryInvalidParams).
			Context("comp_id", dev.ID()).
			Build()
	}
	p := src.Params()
	depth, err := depthForFormat(p.FrameFmt)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fileError(err, "create_dir", dir)
		}
	}
	file, err := os.Create(s.path)
	if err != nil {
		return fileError(err, "create_wav", s.path)
	}

	s.file = file
	s.enc = wav.NewEncoder(file, int(p.Rate), depth, int(p.Channels), 1)
	s.format = p.FrameFmt
	s.pcm = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(p.Channels),
			SampleRate:  int(p.Rate),
		},
		SourceBitDepth: depth,
	}
	s.frames = 0

	dev.Logger().Info("wav sink created",
		logger.String("file_path", s.path),
		logger.Uint32("rate", p.Rate),
		logger.Uint32("channels", p.Channels),
		logger.Int("bit_depth", depth))
	return nil
}

func (s *wavSink) Copy(dev *component.Device) error {
	if s.enc == nil {
		return notPrepared(dev)
	}

	src := dev.Sources()[0]
	fb := src.Stream().FrameBytes()
	frames := src.DataAvailable() / fb
	if frames == 0 {
		return nil
	}

	bytes := frames * fb
	in, err := src.GetData(bytes)
	if err != nil {
		return err
	}
	s.scratch = grow(s.scratch, int(bytes))
	in.CopyOut(s.scratch)

	s.pcm.Data = grow(s.pcm.Data, int(bytes/s.format.SampleBytes()))
	unpackSamples(s.pcm.Data, s.scratch, s.format)
	if err := s.enc.Write(s.pcm); err != nil {
		return fileError(err, "encode_wav", s.path)
	}
	s.frames += uint64(frames)
	return src.ReleaseData(bytes)
}

// finish writes the WAV header sizes and closes the file.
func (s *wavSink) finish(dev *component.Device) error {
	if s.enc == nil {
		return nil
	}
	encErr := s.enc.Close()
	fileErr := s.file.Close()
	s.enc = nil
	s.file = nil

	if err := errors.Join(encErr, fileErr); err != nil {
		return fileError(err, "close_wav", s.path)
	}
	dev.Logger().Info("wav sink closed",
		logger.String("file_path", s.path),
		logger.Uint64("frames", s.frames))
	return nil
}

func (s *wavSink) Reset(dev *component.Device) error {
	return s.finish(dev)
}

func (s *wavSink) Free(dev *component.Device) {
	if err := s.finish(dev); err != nil {
		dev.Logger().Error("wav sink close failed", logger.Error(err))
	}
}

func fileError(err error, op, path string) error {
	return errors.New(err).
		Component(ComponentDrivers).
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("file_path", path).
		Build()
}
