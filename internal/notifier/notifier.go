// Package notifier delivers data-plane events to registered observers.
//
// A Notifier is core-local and synchronous: Event runs every matching
// callback on the calling goroutine, in registration order, before it
// returns. Observers that must not slow the data plane forward to a Bus.
package notifier

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// ComponentNotifier is the error component name for this package.
const ComponentNotifier = "notifier"

// EventID identifies an event type.
type EventID uint8

const (
	BufferProduce EventID = iota
	BufferConsume
	BufferFree
	ComponentState
	eventCount
)

var eventNames = [eventCount]string{"buffer_produce", "buffer_consume", "buffer_free", "component_state"}

func (id EventID) String() string {
	if id < eventCount {
		return eventNames[id]
	}
	return fmt.Sprintf("EventID(%d)", uint8(id))
}

// Events lists every event ID.
func Events() []EventID {
	return []EventID{BufferProduce, BufferConsume, BufferFree, ComponentState}
}

// Callback receives an event. data is the payload the emitter passed to
// Event, typically a pointer the callback must not retain.
type Callback func(id EventID, data any)

type registration struct {
	receiver any
	caller   any
	id       EventID
	cb       Callback
	count    int
}

// Notifier holds registrations for one core. Receivers and callers are
// compared with ==, so they must be comparable values such as pointers.
type Notifier struct {
	mu   sync.Mutex
	list atomic.Pointer[[]registration]
	log  logger.Logger
}

// New returns an empty Notifier. A nil log selects the global logger.
func New(log logger.Logger) *Notifier {
	if log == nil {
		log = logger.Global().Module(ComponentNotifier)
	}
	n := &Notifier{log: log}
	n.list.Store(&[]registration{})
	return n
}

// Register subscribes receiver to id events emitted by caller. A nil caller
// subscribes to id from every emitter. Registering the same triple again
// stacks: it takes as many Unregister calls to remove it.
func (n *Notifier) Register(receiver, caller any, id EventID, cb Callback) error {
	if receiver == nil || cb == nil || id >= eventCount {
		return errors.Newf("register %s: receiver and callback are required", id).
			Component(ComponentNotifier).
			Category(errors.CategoryInvalidParams).
			Build()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	cur := *n.list.Load()
	next := make([]registration, len(cur), len(cur)+1)
	copy(next, cur)

	for i := range next {
		r := &next[i]
		if r.receiver == receiver && r.caller == caller && r.id == id {
			r.count++
			r.cb = cb
			n.list.Store(&next)
			return nil
		}
	}

	next = append(next, registration{receiver: receiver, caller: caller, id: id, cb: cb, count: 1})
	n.list.Store(&next)
	return nil
}

// Unregister drops one registration of receiver for id events from caller.
// nil receiver or caller match any.
func (n *Notifier) Unregister(receiver, caller any, id EventID) {
	n.remove(func(r *registration) bool {
		return r.id == id && matches(r.receiver, receiver) && matches(r.caller, caller)
	}, false)
}

// UnregisterAll drops every registration matching receiver and caller,
// whatever its event ID or stack count. nil matches any.
func (n *Notifier) UnregisterAll(receiver, caller any) {
	n.remove(func(r *registration) bool {
		return matches(r.receiver, receiver) && matches(r.caller, caller)
	}, true)
}

func matches(have, want any) bool {
	return want == nil || have == want
}

func (n *Notifier) remove(match func(*registration) bool, all bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	cur := *n.list.Load()
	next := make([]registration, 0, len(cur))
	removed := 0
	for _, r := range cur {
		if match(&r) {
			if !all && r.count > 1 {
				r.count--
				next = append(next, r)
				continue
			}
			removed++
			continue
		}
		next = append(next, r)
	}
	n.list.Store(&next)

	if removed > 0 {
		n.log.Trace("registrations removed", logger.Int("count", removed))
	}
}

// Event delivers data to every registration for id whose caller is caller
// or a wildcard. Callbacks may register and unregister; changes take effect
// from the next Event.
func (n *Notifier) Event(caller any, id EventID, data any) {
	for _, r := range *n.list.Load() {
		if r.id != id {
			continue
		}
		if r.caller != nil && r.caller != caller {
			continue
		}
		r.cb(id, data)
	}
}

// Len is the number of distinct registrations.
func (n *Notifier) Len() int {
	return len(*n.list.Load())
}
