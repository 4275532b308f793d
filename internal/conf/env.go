// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "DSPCORE_DEBUG", validateEnvBool},
		{"logging.default_level", "DSPCORE_LOG_LEVEL", validateEnvLogLevel},

		{"dsp.cores", "DSPCORE_CORES", validateEnvPositiveInt},
		{"dsp.ipc_version", "DSPCORE_IPC_VERSION", validateEnvIPCVersion},
		{"dsp.already_set_policy", "DSPCORE_ALREADY_SET_POLICY", validateEnvAlreadySet},
		{"dsp.perf_counters", "DSPCORE_PERF_COUNTERS", validateEnvBool},
		{"dsp.period_us", "DSPCORE_PERIOD_US", validateEnvPositiveInt},

		{"metrics.enabled", "DSPCORE_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "DSPCORE_METRICS_LISTEN", validateEnvListen},

		{"telemetry.sentry_dsn", "DSPCORE_SENTRY_DSN", nil},
		{"trace.enabled", "DSPCORE_TRACE_ENABLED", validateEnvBool},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch value {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("must be one of trace, debug, info, warn, error")
}

func validateEnvIPCVersion(value string) error {
	if value != "3" && value != "4" {
		return fmt.Errorf("must be 3 or 4")
	}
	return nil
}

func validateEnvAlreadySet(value string) error {
	if value != AlreadySetIPC3 && value != AlreadySetIPC4 {
		return fmt.Errorf("must be %s or %s", AlreadySetIPC3, AlreadySetIPC4)
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	return nil
}
