// Package drivers holds the component variants the runtime ships with:
// a passthrough copier and WAV file endpoints that feed and drain a
// pipeline from disk.
package drivers

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/tphakala/dspcore/internal/component"
	"github.com/tphakala/dspcore/internal/errors"
)

// ComponentDrivers is the error component name for this package.
const ComponentDrivers = "drivers"

// Driver identifiers as they appear in topology files.
var (
	PassthroughUUID = uuid.MustParse("5150c0e6-27f9-4ec8-8351-c705b642d12f")
	WAVSourceUUID   = uuid.MustParse("8b9d100c-6d78-418f-90a3-e0e805d0852b")
	WAVSinkUUID     = uuid.MustParse("72cee996-39f2-11ed-a08f-23f3c4e1a1c0")
)

// Infos lists every driver in this package.
func Infos() []component.DriverInfo {
	return []component.DriverInfo{
		{UUID: PassthroughUUID, Name: "passthrough", Create: newPassthrough},
		{UUID: WAVSourceUUID, Name: "wav_source", Create: newWAVSource},
		{UUID: WAVSinkUUID, Name: "wav_sink", Create: newWAVSink},
	}
}

// Register adds every driver in this package to reg.
func Register(reg *component.Registry) error {
	for _, info := range Infos() {
		if err := reg.Register(info); err != nil {
			return err
		}
	}
	return nil
}

func optionError(dev *component.Device, key, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentDrivers).
		Category(errors.CategoryInvalidParams).
		Context("comp_id", dev.ID()).
		Context("option", key).
		Build()
}

func stringOption(dev *component.Device, key string) (string, error) {
	v, ok := dev.Option(key)
	if !ok || v == "" {
		return "", optionError(dev, key, "option %q is required", key)
	}
	return v, nil
}

func boolOption(dev *component.Device, key string, def bool) (bool, error) {
	v, ok := dev.Option(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, optionError(dev, key, "option %q: %q is not a boolean", key, v)
	}
	return b, nil
}

func uint32Option(dev *component.Device, key string, def uint32) (uint32, error) {
	v, ok := dev.Option(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, optionError(dev, key, "option %q: %q is not an unsigned integer", key, v)
	}
	return uint32(n), nil
}

func connectionError(dev *component.Device, sources, sinks int) error {
	return errors.Newf("%s needs one source and at least one sink, has %d and %d", dev.Info().Name, sources, sinks).
		Component(ComponentDrivers).
		Category(errors.CategoryTopology).
		Context("comp_id", dev.ID()).
		Build()
}

func notPrepared(dev *component.Device) error {
	return errors.Newf("%s copy before prepare", dev.Info().Name).
		Component(ComponentDrivers).
		Category(errors.CategoryInvalidState).
		Context("comp_id", dev.ID()).
		Build()
}
