// Package irq provides per-core local exclusion. On the target this is
// "interrupts disabled on this core"; here each core has a mutex and the
// only way to obtain a Held token is Disable.
package irq

import (
	"fmt"
	"sync"
)

// Guard holds one exclusion per core.
type Guard struct {
	cores []sync.Mutex
}

// New returns a Guard for cores cores. cores below 1 is treated as 1.
func New(cores int) *Guard {
	return &Guard{cores: make([]sync.Mutex, max(cores, 1))}
}

// Cores is the number of cores the guard covers.
func (g *Guard) Cores() int { return len(g.cores) }

// Held proves the holder excluded every other context on Core. The zero
// value proves nothing.
type Held struct {
	g    *Guard
	core int
}

// Disable enters the core's exclusive section. It panics on an unknown
// core, which is a wiring bug rather than a runtime condition.
func (g *Guard) Disable(core int) Held {
	if core < 0 || core >= len(g.cores) {
		panic(fmt.Sprintf("irq: core %d out of range [0,%d)", core, len(g.cores)))
	}
	g.cores[core].Lock()
	return Held{g: g, core: core}
}

// Enable leaves the exclusive section.
func (h Held) Enable() {
	h.g.cores[h.core].Unlock()
}

// Core is the core the token was taken on.
func (h Held) Core() int { return h.core }

// Valid reports whether h came from Disable.
func (h Held) Valid() bool { return h.g != nil }

// Covers reports whether h is a valid token for core.
func (h Held) Covers(core int) bool {
	return h.Valid() && h.core == core
}
