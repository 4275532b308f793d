// Package conf loads dspcore settings from YAML, environment and defaults.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/tphakala/dspcore/internal/logger"
)

// Already-set policies. The IPC generation decides what a same-state
// trigger reports back to the host.
const (
	AlreadySetIPC3 = "ipc3" // plain success
	AlreadySetIPC4 = "ipc4" // distinct "already set" status
)

// Settings is the root configuration object
type Settings struct {
	Debug     bool                 `mapstructure:"debug"`
	Logging   logger.LoggingConfig `mapstructure:"logging"`
	DSP       DSPSettings          `mapstructure:"dsp"`
	Memory    MemorySettings       `mapstructure:"memory"`
	Metrics   MetricsSettings      `mapstructure:"metrics"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry"`
	Trace     TraceSettings        `mapstructure:"trace"`
}

// DSPSettings configures the per-core runtime
type DSPSettings struct {
	Cores        int    `mapstructure:"cores"`              // number of scheduler cores
	IPCVersion   int    `mapstructure:"ipc_version"`        // 3 or 4
	AlreadySet   string `mapstructure:"already_set_policy"` // empty derives from ipc_version
	PerfCounters bool   `mapstructure:"perf_counters"`      // per-component cycle accounting
	PeriodUS     int    `mapstructure:"period_us"`          // scheduler period in microseconds
	CPUHz        uint64 `mapstructure:"cpu_hz"`             // 0 detects from the host CPU
}

// AlreadySetPolicy resolves the already-set policy, falling back to the
// IPC generation.
func (d *DSPSettings) AlreadySetPolicy() string {
	if d.AlreadySet != "" {
		return d.AlreadySet
	}
	if d.IPCVersion >= 4 {
		return AlreadySetIPC4
	}
	return AlreadySetIPC3
}

// MemorySettings sizes the capability zones of the heap
type MemorySettings struct {
	Auto         bool    `mapstructure:"auto"`          // size zones from host memory
	AutoFraction float64 `mapstructure:"auto_fraction"` // share of available host memory when auto
	RuntimeBytes uint64  `mapstructure:"runtime_bytes"`
	SharedBytes  uint64  `mapstructure:"shared_bytes"`
	DMABytes     uint64  `mapstructure:"dma_bytes"`
}

// MetricsSettings controls the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// TelemetrySettings controls error reporting
type TelemetrySettings struct {
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// TraceSettings controls the buffer transaction trace
type TraceSettings struct {
	Enabled  bool `mapstructure:"enabled"`
	Capacity int  `mapstructure:"capacity"` // records kept before the oldest is dropped
}

// Load reads configuration from configFile, or from dspcore.yaml in the
// default search paths when configFile is empty. A missing default file is
// not an error; defaults and environment apply.
func Load(configFile string) (*Settings, error) {
	v, err := initViper(configFile)
	if err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper sets defaults, binds environment variables and reads the file.
func initViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("dspcore")
	for _, path := range defaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return v, nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dspcore"))
	}
	return append(paths, "/etc/dspcore")
}
