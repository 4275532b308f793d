// Package observability exposes the data plane to Prometheus: a registry
// of collectors, a sampler that keeps the snapshot gauges current, and an
// HTTP endpoint serving them.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/dspcore/internal/logger"
	"github.com/tphakala/dspcore/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Dataplane *metrics.DataplaneMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	dataplane, err := metrics.NewDataplaneMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataplane metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Dataplane: dataplane,
	}, nil
}

// Registry returns the registry every collector is registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      handlerErrorLog{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}

// handlerErrorLog routes promhttp errors to the package logger.
type handlerErrorLog struct{}

func (handlerErrorLog) Println(v ...any) {
	log.Error("metrics handler error", logger.String("error", fmt.Sprint(v...)))
}
