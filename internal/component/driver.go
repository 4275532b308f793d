package component

import (
	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/errors"
)

// Driver is the operation set of one component variant. Implementations
// are created per device by DriverInfo.Create. Payloads of Cmd and the
// large-config calls are opaque to the core.
type Driver interface {
	Free(dev *Device)
	Params(dev *Device, p *audiostream.Params) error
	Prepare(dev *Device) error
	Trigger(dev *Device, cmd Trigger) error
	Copy(dev *Device) error
	Reset(dev *Device) error
	Cmd(dev *Device, cmd uint32, data []byte) ([]byte, error)
	GetLargeConfig(dev *Device, paramID uint32) ([]byte, error)
	SetLargeConfig(dev *Device, paramID uint32, data []byte) error
}

// BaseDriver provides the default for every operation except Copy.
// Variants embed it and override what they handle.
type BaseDriver struct{}

func (BaseDriver) Free(*Device) {}

// Params applies p to every attached buffer.
func (BaseDriver) Params(dev *Device, p *audiostream.Params) error {
	return VerifyParams(dev, p)
}

func (BaseDriver) Prepare(*Device) error          { return nil }
func (BaseDriver) Trigger(*Device, Trigger) error { return nil }
func (BaseDriver) Reset(*Device) error            { return nil }

func (BaseDriver) Cmd(_ *Device, cmd uint32, _ []byte) ([]byte, error) {
	return nil, unsupported("cmd", cmd)
}

func (BaseDriver) GetLargeConfig(_ *Device, paramID uint32) ([]byte, error) {
	return nil, unsupported("get_large_config", paramID)
}

func (BaseDriver) SetLargeConfig(_ *Device, paramID uint32, _ []byte) error {
	return unsupported("set_large_config", paramID)
}

func unsupported(op string, id uint32) error {
	return errors.Newf("%s %d not supported by driver", op, id).
		Component(ComponentName).
		Category(errors.CategoryInvalidParams).
		Build()
}

// VerifyParams applies p to every buffer attached to dev, within the
// buffers' configuration epoch.
func VerifyParams(dev *Device, p *audiostream.Params) error {
	for _, b := range dev.sources {
		if err := b.SetParams(p, false); err != nil {
			return err
		}
	}
	for _, b := range dev.sinks {
		if err := b.SetParams(p, false); err != nil {
			return err
		}
	}
	return nil
}
