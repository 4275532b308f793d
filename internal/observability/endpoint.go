package observability

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
	metricspkg "github.com/tphakala/dspcore/internal/observability/metrics"
)

// ComponentObservability is the error component name for this package.
const ComponentObservability = "observability"

const readHeaderTimeout = 5 * time.Second

// Endpoint serves the Prometheus metrics, and pprof when debugging is on.
type Endpoint struct {
	listenAddress string
	debug         bool
	metrics       *Metrics
	addr          atomic.Pointer[string]
}

// NewEndpoint creates the metrics endpoint described by settings. It
// fails when the endpoint is disabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Metrics.Enabled {
		return nil, errors.Newf("metrics endpoint not enabled in settings").
			Component(ComponentObservability).
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		debug:         settings.Debug,
		metrics:       metrics,
	}, nil
}

// Handler returns the routes the endpoint serves.
func (e *Endpoint) Handler() http.Handler {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)
	if e.debug {
		RegisterDebugHandlers(mux)
	}
	return mux
}

// Addr is the address the endpoint listens on, empty until Run has bound
// it.
func (e *Endpoint) Addr() string {
	if p := e.addr.Load(); p != nil {
		return *p
	}
	return ""
}

// Run serves until ctx is cancelled, then shuts the server down
// gracefully. A listen or serve failure is returned.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component(ComponentObservability).
			Category(errors.CategorySystem).
			Context("address", e.listenAddress).
			Build()
	}
	addr := ln.Addr().String()
	e.addr.Store(&addr)

	server := &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	served := make(chan error, 1)
	go func() { served <- server.Serve(ln) }()
	log.Info("metrics endpoint started", logger.String("address", addr))

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(ComponentObservability).
			Category(errors.CategorySystem).
			Build()
	case <-ctx.Done():
	}

	log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-served
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
