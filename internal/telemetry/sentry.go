// Package telemetry reports data-plane errors to Sentry. Reporting is
// opt-in: nothing is sent unless a DSN is configured.
package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/dspcore/internal/buildinfo"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/cpuspec"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// FlushTimeout bounds how long Flush waits for queued events on exit.
const FlushTimeout = 2 * time.Second

var log = logger.Global().Module("telemetry")

// PlatformInfo holds privacy-safe platform information for telemetry
type PlatformInfo struct {
	OS           string
	Architecture string
	CPU          string
	NumCPU       int
	GoVersion    string
}

func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPU:          cpuspec.GetCPUSpec().BrandName,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// InitSentry initializes the Sentry SDK when settings carry a DSN and
// installs it as the error reporter. It reports whether reporting is on.
func InitSentry(settings *conf.Settings, build buildinfo.BuildInfo) (bool, error) {
	return initSentry(settings, build, nil)
}

// initSentry is InitSentry with a replaceable transport.
func initSentry(settings *conf.Settings, build buildinfo.BuildInfo, transport sentry.Transport) (bool, error) {
	if settings.Telemetry.SentryDSN == "" {
		log.Debug("sentry telemetry is disabled")
		errors.SetTelemetryReporter(nil)
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.SentryDSN,
		SampleRate:       1.0,
		Debug:            false,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("dspcore@%s", build.GetVersion()),
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, fmt.Errorf("sentry initialization failed: %w", err)
	}

	configureScope(build)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	log.Info("sentry telemetry initialized",
		logger.String("version", build.GetVersion()),
		logger.String("system_id", build.GetSystemID()))
	return true, nil
}

// applyPrivacyFilters strips host identifying data from an event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

func configureScope(build buildinfo.BuildInfo) {
	platform := collectPlatformInfo()

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", build.GetSystemID())
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)

		scope.SetContext("application", map[string]any{
			"name":       "dspcore",
			"version":    build.GetVersion(),
			"build_date": build.GetBuildDate(),
		})
		scope.SetContext("platform", map[string]any{
			"os":           platform.OS,
			"architecture": platform.Architecture,
			"cpu":          platform.CPU,
			"num_cpu":      platform.NumCPU,
			"go_version":   platform.GoVersion,
		})
	})
}

// Flush waits up to timeout for queued events to be sent. It is a no-op
// when Sentry was never initialized.
func Flush(timeout time.Duration) {
	if sentry.CurrentHub().Client() == nil {
		return
	}
	if !sentry.Flush(timeout) {
		log.Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}
