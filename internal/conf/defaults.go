package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/dspcore/internal/logger"
)

// setDefaultConfig sets default values for each configuration parameter.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", false)

	v.SetDefault("dsp.cores", 1)
	v.SetDefault("dsp.ipc_version", 4)
	v.SetDefault("dsp.already_set_policy", "")
	v.SetDefault("dsp.perf_counters", true)
	v.SetDefault("dsp.period_us", 1000)
	v.SetDefault("dsp.cpu_hz", 0)

	v.SetDefault("memory.auto", false)
	v.SetDefault("memory.auto_fraction", 0.01)
	v.SetDefault("memory.runtime_bytes", 1<<20)
	v.SetDefault("memory.shared_bytes", 256<<10)
	v.SetDefault("memory.dma_bytes", 256<<10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("telemetry.sentry_dsn", "")

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.capacity", 1024)
}
