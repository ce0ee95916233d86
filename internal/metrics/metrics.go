// Package metrics instruments scan throughput, materializer refresh
// latency, and emitter stanza counts. Prometheus collectors are the
// primary surface (scraped via promhttp); an OpenTelemetry meter
// provider is wired on top of the same registry so instruments can be
// exported through either pipeline without double-counting.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Registry is the Prometheus registry repovector publishes on, kept
// separate from the global default registry so tests and repeated
// Scheduler runs in the same process don't collide on collector
// registration.
type Registry struct {
	reg *prometheus.Registry

	FilesScanned      *prometheus.CounterVec
	FilesSkipped      prometheus.Counter
	ScanErrors        *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	MaterializeDuration *prometheus.HistogramVec
	StanzasEmitted    *prometheus.GaugeVec
	NotifyFailures    prometheus.Counter

	provider *sdkmetric.MeterProvider
}

// New constructs a Registry with all collectors registered, and an
// OTel MeterProvider reading from the same set via the Prometheus
// exporter bridge.
func New() (*Registry, error) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		reg: reg,
		FilesScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repovector_files_scanned_total",
			Help: "Deb files processed by the scan orchestrator, by outcome.",
		}, []string{"outcome"}),
		FilesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "repovector_files_skipped_total",
			Help: "Deb files skipped because their (filename, size, mtime) already matched a stored row.",
		}),
		ScanErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repovector_scan_errors_total",
			Help: "Per-file scan failures, by error kind.",
		}, []string{"kind"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "repovector_scan_duration_seconds",
			Help:    "Wall-clock duration of a full scan pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		MaterializeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repovector_materialize_duration_seconds",
			Help:    "Duration of each full derived-relation refresh, by the command that ran it.",
			Buckets: prometheus.DefBuckets,
		}, []string{"relation"}),
		StanzasEmitted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "repovector_stanzas_emitted",
			Help: "Package stanzas written to the current Packages file, by repo.",
		}, []string{"repo"}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "repovector_notify_failures_total",
			Help: "Change-notifier publish attempts that failed (non-fatal).",
		}),
	}

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	r.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return r, nil
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the /metrics scrape endpoint for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Meter returns an OpenTelemetry meter scoped to name, backed by the
// same registry as the Prometheus collectors above.
func (r *Registry) Meter(name string) metric.Meter {
	return r.provider.Meter(name)
}

// Shutdown flushes and releases the OTel meter provider.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
