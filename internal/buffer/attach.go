package buffer

import (
	"slices"

	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/irq"
)

// CompRef is a non-owning reference to a component: its index in the
// component table. Buffers never keep components alive.
type CompRef uint32

// Direction says which side of the buffer a component sits on.
type Direction uint8

const (
	// CompToBuffer: the component produces into the buffer.
	CompToBuffer Direction = iota
	// BufferToComp: the component consumes from the buffer.
	BufferToComp
)

func (d Direction) String() string {
	if d == CompToBuffer {
		return "comp_to_buffer"
	}
	return "buffer_to_comp"
}

func (b *Buffer) list(dir Direction) *[]CompRef {
	if dir == CompToBuffer {
		return &b.sources
	}
	return &b.sinks
}

// Attach records ref on the side selected by dir. The caller must hold the
// local exclusion of its core, since that core's scheduler may start
// streaming through the buffer at any time. Nothing serialises two cores
// attaching to the same buffer.
func (b *Buffer) Attach(held irq.Held, ref CompRef, dir Direction) error {
	if !held.Valid() {
		return ErrInvalidState
	}
	l := b.list(dir)
	*l = slices.Insert(*l, 0, ref)
	return nil
}

// Detach removes ref from the side selected by dir, under the same
// locking rule as Attach.
func (b *Buffer) Detach(held irq.Held, ref CompRef, dir Direction) error {
	if !held.Valid() {
		return ErrInvalidState
	}
	l := b.list(dir)
	i := slices.Index(*l, ref)
	if i < 0 {
		return errors.Newf("component %d is not attached to %s as %s", ref, b.name, dir).
			Component(ComponentBuffer).
			Category(errors.CategoryNotFound).
			Build()
	}
	*l = slices.Delete(*l, i, i+1)
	return nil
}
