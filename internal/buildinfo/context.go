// Package buildinfo carries build-time metadata and validation results,
// kept apart from user configuration.
package buildinfo

import (
	"os"
	"runtime/debug"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Set at link time with -ldflags "-X".
var (
	version   = ""
	buildDate = ""
)

// systemNamespace scopes system IDs derived from host names.
var systemNamespace = uuid.MustParse("6f1c0a52-2b4d-4c55-9a0e-5d8e61f3b7a4")

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetSystemID() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
	// SystemID identifies the host without revealing it.
	SystemID string
}

// NewContext creates a context from explicit values.
func NewContext(version, buildDate, systemID string) *Context {
	return &Context{Version: version, BuildDate: buildDate, SystemID: systemID}
}

// Current returns the metadata of the running binary. The version falls
// back to the module version recorded by the Go toolchain.
func Current() *Context {
	v := version
	if v == "" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return NewContext(v, buildDate, SystemID())
}

// SystemID is a stable name-based UUID of the host name, or UnknownValue
// when the host name cannot be read.
func SystemID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return UnknownValue
	}
	return uuid.NewSHA1(systemNamespace, []byte(host)).String()
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// GetVersion implements BuildInfo.
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

// GetBuildDate implements BuildInfo.
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

// GetSystemID implements BuildInfo.
func (c *Context) GetSystemID() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.SystemID)
}

// ValidationResult holds validation outcomes separately from configuration
type ValidationResult struct {
	// Warnings are issues that don't prevent startup
	Warnings []string `json:"warnings,omitempty"`
	// Errors are critical issues that should prevent startup
	Errors []string `json:"errors,omitempty"`
	Valid  bool     `json:"valid"`
}

// NewValidationResult creates a new validation result with Valid set to true
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// AddWarning adds a warning to the validation result
func (r *ValidationResult) AddWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// AddError adds an error to the validation result
func (r *ValidationResult) AddError(message string) {
	r.Errors = append(r.Errors, message)
	r.Valid = false
}

// HasIssues returns true if there are any warnings or errors
func (r *ValidationResult) HasIssues() bool {
	return len(r.Warnings) > 0 || len(r.Errors) > 0
}
