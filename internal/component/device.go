// Package component implements the processing-graph node: a driver
// behind a fixed lifecycle state machine, the per-core copy guard with its
// cycle accounting, and the registry drivers are created from.
package component

import (
	"fmt"
	"slices"
	"time"

	"github.com/tphakala/dspcore/internal/audiostream"
	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/irq"
	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/notifier"
)

// Domain is the scheduling domain of a component.
type Domain uint8

const (
	// DomainLL components run in the low-latency tick of their core.
	DomainLL Domain = iota
	// DomainDP components may run off their affined core.
	DomainDP
)

func (d Domain) String() string {
	if d == DomainDP {
		return "dp"
	}
	return "ll"
}

// ParseDomain accepts "ll" and "dp"; empty means ll.
func ParseDomain(s string) (Domain, error) {
	switch s {
	case "", "ll", "LL":
		return DomainLL, nil
	case "dp", "DP":
		return DomainDP, nil
	default:
		return 0, errors.Newf("unknown processing domain %q", s).
			Component(ComponentName).
			Category(errors.CategoryInvalidParams).
			Build()
	}
}

// Config identifies a device and carries its driver-specific settings.
type Config struct {
	ID         uint32
	Core       int
	PipelineID uint32
	Domain     Domain
	// Options are driver-specific and uninterpreted by the core.
	Options map[string]string
}

// Env is what devices report to.
type Env struct {
	Notifier     *notifier.Notifier
	Clock        *Clock
	Policy       AlreadySetPolicy
	PerfCounters bool
	Log          logger.Logger
}

// Device is one component instance.
type Device struct {
	id         uint32
	core       int
	pipelineID uint32
	domain     Domain
	name       string
	ref        buffer.CompRef
	options    map[string]string

	info   DriverInfo
	driver Driver
	state  State

	// buffers read from and written to, in connection order
	sources []*buffer.Buffer
	sinks   []*buffer.Buffer

	isShared bool

	perf       Perf
	perfScale  perfScale
	perfOn     bool
	clock      *Clock
	policy     AlreadySetPolicy
	notifier   *notifier.Notifier
	stateEvent StateChange

	log logger.Logger
}

func newDevice(cfg Config, info DriverInfo, env *Env) *Device {
	log := env.Log
	if log == nil {
		log = logger.Global().Module(ComponentName)
	}
	clock := env.Clock
	if clock == nil {
		clock = NewClock(0)
	}
	d := &Device{
		id:         cfg.ID,
		core:       cfg.Core,
		pipelineID: cfg.PipelineID,
		domain:     cfg.Domain,
		name:       fmt.Sprintf("comp/%d", cfg.ID),
		options:    cfg.Options,
		info:       info,
		state:      StateReady,
		perfOn:     env.PerfCounters,
		clock:      clock,
		policy:     env.Policy,
		notifier:   env.Notifier,
	}
	d.log = log.With(
		logger.Uint32("comp_id", cfg.ID),
		logger.String("driver", info.Name),
		logger.Int("core", cfg.Core))
	return d
}

func (d *Device) ID() uint32            { return d.id }
func (d *Device) Core() int             { return d.core }
func (d *Device) PipelineID() uint32    { return d.pipelineID }
func (d *Device) Domain() Domain        { return d.domain }
func (d *Device) Ref() buffer.CompRef   { return d.ref }
func (d *Device) State() State          { return d.state }
func (d *Device) Shared() bool          { return d.isShared }
func (d *Device) Driver() Driver        { return d.driver }
func (d *Device) Info() DriverInfo      { return d.info }
func (d *Device) Logger() logger.Logger { return d.log }
func (d *Device) String() string        { return d.name }

// Option returns a driver-specific setting.
func (d *Device) Option(key string) (string, bool) {
	v, ok := d.options[key]
	return v, ok
}

// Sources are the buffers the device reads from.
func (d *Device) Sources() []*buffer.Buffer { return d.sources }

// Sinks are the buffers the device writes to.
func (d *Device) Sinks() []*buffer.Buffer { return d.sinks }

// SetState applies the transition table for cmd. A trigger to the current
// state succeeds without a transition and reports according to the
// already-set policy. Rejected triggers leave the state unchanged.
func (d *Device) SetState(cmd Trigger) (Status, error) {
	from := d.state
	next, status, ok := nextState(cmd, from, d.policy)
	if !ok {
		d.log.Error("invalid state transition",
			logger.String("trigger", cmd.String()),
			logger.String("state", from.String()))
		return StatusOK, stateError(cmd, from)
	}
	if next == from {
		d.log.Debug("state already set",
			logger.String("trigger", cmd.String()),
			logger.String("state", from.String()))
		return status, nil
	}

	if cmd == TriggerReset && from == StateActive {
		d.log.Warn("reset while active")
	}

	d.state = next
	d.emitState(from, next)
	return StatusOK, nil
}

// StateChange is the payload of ComponentState events.
type StateChange struct {
	Device *Device
	From   State
	To     State
}

// Record implements notifier.Recordable.
func (s *StateChange) Record(id notifier.EventID) notifier.Record {
	return notifier.Record{
		ID:     id,
		Source: s.Device.name,
		Value:  int64(s.To),
		Time:   time.Now(),
	}
}

func (d *Device) emitState(from, to State) {
	if d.notifier == nil {
		return
	}
	d.stateEvent = StateChange{Device: d, From: from, To: to}
	d.notifier.Event(d, notifier.ComponentState, &d.stateEvent)
}

// Trigger moves the state machine and then runs the driver's trigger.
// A trigger to the current state does not reach the driver. When the
// driver rejects the command the previous state is restored, except for
// RESET and XRUN: those always leave the device READY and the driver
// error is only logged.
func (d *Device) Trigger(cmd Trigger) (Status, error) {
	from := d.state
	status, err := d.SetState(cmd)
	if err != nil || status == StatusAlreadySet || d.state == from {
		return status, err
	}

	if err := d.driver.Trigger(d, cmd); err != nil {
		if cmd == TriggerReset || cmd == TriggerXrun {
			d.log.Warn("driver failed to reset, component forced to ready",
				logger.String("trigger", cmd.String()),
				logger.String("from", from.String()),
				logger.Error(err))
			return status, nil
		}
		d.log.Error("driver rejected trigger",
			logger.String("trigger", cmd.String()),
			logger.Error(err))
		to := d.state
		d.state = from
		d.emitState(to, from)
		return StatusOK, err
	}
	return status, nil
}

// Params passes p to the driver.
func (d *Device) Params(p *audiostream.Params) error {
	return d.driver.Params(d, p)
}

// Prepare passes through to the driver.
func (d *Device) Prepare() error {
	return d.driver.Prepare(d)
}

// Reset passes through to the driver. It does not touch the state; use
// Trigger(TriggerReset) for that.
func (d *Device) Reset() error {
	return d.driver.Reset(d)
}

// Cmd passes an opaque command to the driver.
func (d *Device) Cmd(cmd uint32, data []byte) ([]byte, error) {
	return d.driver.Cmd(d, cmd, data)
}

// GetLargeConfig passes through to the driver.
func (d *Device) GetLargeConfig(paramID uint32) ([]byte, error) {
	return d.driver.GetLargeConfig(d, paramID)
}

// SetLargeConfig passes through to the driver.
func (d *Device) SetLargeConfig(paramID uint32, data []byte) error {
	return d.driver.SetLargeConfig(d, paramID, data)
}

// Free releases driver resources. The device must not be used after.
func (d *Device) Free() {
	if d.driver != nil {
		d.driver.Free(d)
	}
	d.sources = nil
	d.sinks = nil
}

// BindBuffer connects b to the device. CompToBuffer makes b an output of
// the device, BufferToComp an input. held must be the exclusion of the
// device's core.
func (d *Device) BindBuffer(held irq.Held, b *buffer.Buffer, dir buffer.Direction) error {
	if !held.Covers(d.core) {
		return ErrInvalidState
	}
	if err := b.Attach(held, d.ref, dir); err != nil {
		return err
	}
	if dir == buffer.CompToBuffer {
		d.sinks = append(d.sinks, b)
	} else {
		d.sources = append(d.sources, b)
	}
	return nil
}

// UnbindBuffer reverses BindBuffer.
func (d *Device) UnbindBuffer(held irq.Held, b *buffer.Buffer, dir buffer.Direction) error {
	if !held.Covers(d.core) {
		return ErrInvalidState
	}
	if err := b.Detach(held, d.ref, dir); err != nil {
		return err
	}
	if dir == buffer.CompToBuffer {
		d.sinks = slices.DeleteFunc(d.sinks, func(x *buffer.Buffer) bool { return x == b })
	} else {
		d.sources = slices.DeleteFunc(d.sources, func(x *buffer.Buffer) bool { return x == b })
	}
	return nil
}

// MakeShared marks the device for cross-core connections. It is one-way.
func (d *Device) MakeShared() {
	if d.isShared {
		return
	}
	d.isShared = true
	d.log.Debug("component made shared")
}
