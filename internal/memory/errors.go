package memory

import "github.com/tphakala/dspcore/internal/errors"

// ComponentMemory is the error component name for this package.
const ComponentMemory = "memory"

var (
	// ErrOutOfMemory matches any allocation failure.
	ErrOutOfMemory = errors.Newf("out of memory").
			Component(ComponentMemory).
			Category(errors.CategoryOutOfMemory).
			Build()

	errInvalidSize = errors.Newf("invalid size: zero-byte allocation").
			Component(ComponentMemory).
			Category(errors.CategoryInvalidSize).
			Build()
)
