package audiostream

import "github.com/tphakala/dspcore/internal/errors"

// ComponentAudioStream is the error component name for this package.
const ComponentAudioStream = "audiostream"

// ErrInvalidParams matches any rejected stream format.
var ErrInvalidParams = errors.Newf("invalid stream params").
	Component(ComponentAudioStream).
	Category(errors.CategoryInvalidParams).
	Build()
