package component

import (
	"github.com/tphakala/dspcore/internal/buffer"
	"github.com/tphakala/dspcore/internal/errors"
)

// Table is the arena devices live in. A device's buffer.CompRef is its
// slot; slots are not reused, so a stale reference resolves to nil rather
// than to another device.
type Table struct {
	slots []*Device
	byID  map[uint32]buffer.CompRef
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byID: make(map[uint32]buffer.CompRef)}
}

// Add stores dev and assigns its reference. Component IDs must be unique.
func (t *Table) Add(dev *Device) (buffer.CompRef, error) {
	if _, ok := t.byID[dev.id]; ok {
		return 0, errors.Newf("component id %d already in use", dev.id).
			Component(ComponentName).
			Category(errors.CategoryConflict).
			Build()
	}
	ref := buffer.CompRef(len(t.slots))
	dev.ref = ref
	t.slots = append(t.slots, dev)
	t.byID[dev.id] = ref
	return ref, nil
}

// Get resolves ref; nil when the device was removed or never existed.
func (t *Table) Get(ref buffer.CompRef) *Device {
	if int(ref) >= len(t.slots) {
		return nil
	}
	return t.slots[ref]
}

// ByID finds a device by component ID.
func (t *Table) ByID(id uint32) (*Device, bool) {
	ref, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.slots[ref], true
}

// Remove frees the device in ref's slot and empties it.
func (t *Table) Remove(ref buffer.CompRef) {
	dev := t.Get(ref)
	if dev == nil {
		return
	}
	dev.Free()
	delete(t.byID, dev.id)
	t.slots[ref] = nil
}

// Devices returns the live devices in insertion order.
func (t *Table) Devices() []*Device {
	out := make([]*Device, 0, len(t.byID))
	for _, d := range t.slots {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Len is the number of live devices.
func (t *Table) Len() int { return len(t.byID) }

// Clear frees every device.
func (t *Table) Clear() {
	for ref := range t.slots {
		t.Remove(buffer.CompRef(ref))
	}
	t.slots = nil
}
