// Package telemetry instruments the agent's own collection passes and
// exposes them in the Prometheus text format.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

const (
	namespace = "metricd"

	// OutcomeSuccess labels passes that returned metrics, even none.
	OutcomeSuccess = "success"
	// OutcomeAborted labels passes that returned nil.
	OutcomeAborted = "aborted"
)

// Metrics holds the agent's self-instrumentation on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	passes    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	published *prometheus.CounterVec
}

// New creates and registers the collection pass metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_passes_total",
			Help:      "Collection passes by collector and outcome.",
		}, []string{"collector", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collector_pass_duration_seconds",
			Help:      "Wall time of one collection pass.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collector"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_metrics_total",
			Help:      "Metrics published by successful passes.",
		}, []string{"collector"}),
	}
	m.registry.MustRegister(m.passes, m.duration, m.published)
	return m
}

// ObservePass records one pass. A nil metrics slice is an aborted pass.
func (m *Metrics) ObservePass(collector string, took time.Duration, metrics []metric.Metric) {
	outcome := OutcomeSuccess
	if metrics == nil {
		outcome = OutcomeAborted
	}
	m.passes.WithLabelValues(collector, outcome).Inc()
	m.duration.WithLabelValues(collector).Observe(took.Seconds())
	m.published.WithLabelValues(collector).Add(float64(len(metrics)))
}

// Registry returns the private registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes m on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving telemetry", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "telemetry server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutting down telemetry server")
		}
		return nil
	}
}
