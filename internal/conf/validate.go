package conf

import (
	"fmt"

	"github.com/tphakala/dspcore/internal/errors"
)

const (
	maxCores    = 64
	maxPeriodUS = 100_000
)

// ValidationError collects every problem found in one pass
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings checks the loaded settings for consistency
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validateDSPSettings(&settings.DSP, &ve)
	validateMemorySettings(&settings.Memory, &ve)

	if settings.Metrics.Enabled && settings.Metrics.Listen == "" {
		ve.Errors = append(ve.Errors, "metrics.listen is required when metrics are enabled")
	}
	if settings.Trace.Enabled && settings.Trace.Capacity <= 0 {
		ve.Errors = append(ve.Errors, "trace.capacity must be positive when trace is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateDSPSettings(d *DSPSettings, ve *ValidationError) {
	if d.Cores <= 0 || d.Cores > maxCores {
		ve.Errors = append(ve.Errors, fmt.Sprintf("dsp.cores must be between 1 and %d", maxCores))
	}
	if d.IPCVersion != 3 && d.IPCVersion != 4 {
		ve.Errors = append(ve.Errors, "dsp.ipc_version must be 3 or 4")
	}
	switch d.AlreadySet {
	case "", AlreadySetIPC3, AlreadySetIPC4:
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("dsp.already_set_policy %q is not ipc3 or ipc4", d.AlreadySet))
	}
	if d.PeriodUS <= 0 || d.PeriodUS > maxPeriodUS {
		ve.Errors = append(ve.Errors, fmt.Sprintf("dsp.period_us must be between 1 and %d", maxPeriodUS))
	}
}

func validateMemorySettings(m *MemorySettings, ve *ValidationError) {
	if m.Auto {
		if m.AutoFraction <= 0 || m.AutoFraction > 0.5 {
			ve.Errors = append(ve.Errors, "memory.auto_fraction must be in (0, 0.5]")
		}
		return
	}
	if m.RuntimeBytes == 0 {
		ve.Errors = append(ve.Errors, "memory.runtime_bytes must be positive")
	}
}
