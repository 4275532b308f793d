package buffer

import "github.com/tphakala/dspcore/internal/errors"

// ComponentBuffer is the error component name for this package.
const ComponentBuffer = "buffer"

// Sentinels. errors.Is matches them against any error of the same
// category, wherever it was built.
var (
	ErrInvalidSize = errors.Newf("invalid buffer size").
			Component(ComponentBuffer).
			Category(errors.CategoryInvalidSize).
			Build()

	ErrOutOfMemory = errors.Newf("buffer out of memory").
			Component(ComponentBuffer).
			Category(errors.CategoryOutOfMemory).
			Build()

	// ErrNoData is returned as-is from GetData and GetBuffer so the
	// per-period retry path does not allocate.
	ErrNoData = errors.Newf("not enough data or space in buffer").
			Component(ComponentBuffer).
			Category(errors.CategoryNoData).
			Build()

	ErrInvalidParams = errors.Newf("invalid buffer params").
				Component(ComponentBuffer).
				Category(errors.CategoryInvalidParams).
				Build()

	ErrInvalidState = errors.Newf("buffer used outside its locking discipline").
			Component(ComponentBuffer).
			Category(errors.CategoryInvalidState).
			Build()
)

func sizeError(op string, size uint32) error {
	return errors.Newf("%s: size %d is invalid", op, size).
		Component(ComponentBuffer).
		Category(errors.CategoryInvalidSize).
		Context("operation", op).
		Build()
}

func rangeError(op string, preferred, minimum uint32) error {
	return errors.Newf("%s: size range %d -- %d is invalid", op, minimum, preferred).
		Component(ComponentBuffer).
		Category(errors.CategoryInvalidSize).
		Context("operation", op).
		Build()
}

// heapError wraps a heap failure. Requests the heap rejects as malformed
// keep their invalid-size category; everything else is out-of-memory.
func heapError(op string, err error, requested, current uint32) error {
	category := errors.CategoryOutOfMemory
	if errors.IsCategory(err, errors.CategoryInvalidSize) {
		category = errors.CategoryInvalidSize
	}
	return errors.New(err).
		Component(ComponentBuffer).
		Category(category).
		Context("operation", op).
		SizeContext(requested, current).
		Build()
}

// retryable reports whether a smaller request might succeed where err
// failed.
func retryable(err error) bool {
	return errors.IsCategory(err, errors.CategoryOutOfMemory)
}

func freedError(op string) error {
	return errors.Newf("%s: buffer already freed", op).
		Component(ComponentBuffer).
		Category(errors.CategoryInvalidState).
		Context("operation", op).
		Build()
}
