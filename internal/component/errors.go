package component

import "github.com/tphakala/dspcore/internal/errors"

// ComponentName is the error component name for this package.
const ComponentName = "component"

var (
	// ErrInvalidState matches any rejected trigger.
	ErrInvalidState = errors.Newf("invalid component state").
			Component(ComponentName).
			Category(errors.CategoryInvalidState).
			Build()

	// ErrNotFound matches lookups of unknown drivers or components.
	ErrNotFound = errors.Newf("not found").
			Component(ComponentName).
			Category(errors.CategoryNotFound).
			Build()
)

func stateError(cmd Trigger, from State) error {
	return errors.Newf("trigger %s from state %s is invalid", cmd, from).
		Component(ComponentName).
		Category(errors.CategoryInvalidState).
		Context("trigger", cmd.String()).
		Context("state", from.String()).
		Build()
}
