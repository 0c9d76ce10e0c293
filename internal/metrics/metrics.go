// Package metrics adapts the teacher's metrics.go Prometheus
// instrumentation (request-processing histograms, response-error
// counters, build/config info gauges) to the transcoder's own unit of
// work: a conversion instead of an OCSP/TSP request, and a FormatError
// kind instead of a protocol error type.
package metrics

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the vectors registered in it.
type Metrics struct {
	registry *prometheus.Registry

	conversionDuration *prometheus.HistogramVec
	conversionsTotal   *prometheus.CounterVec
	formatErrorsTotal  *prometheus.CounterVec
	buildInfo          *prometheus.GaugeVec
}

// New creates a Metrics object and registers its vectors in registry. A
// nil registry registers against prometheus.DefaultRegisterer.
func New(registry *prometheus.Registry, version, buildTimestamp string) *Metrics {
	out := &Metrics{registry: registry}

	var registerer prometheus.Registerer = out.registry
	if out.registry == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	out.conversionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legacytsconv",
			Name:      "conversion_duration_seconds",
			Help:      "Time spent converting one legacy timestamp token into a keyless signature TLV.",
		},
		[]string{"outcome"},
	)

	out.conversionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacytsconv",
			Name:      "conversions_total",
			Help:      "Conversions attempted, partitioned by outcome (ok|error).",
		},
		[]string{"outcome"},
	)

	out.formatErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacytsconv",
			Name:      "format_errors_total",
			Help:      "Rejected conversions, partitioned by FormatError kind.",
		},
		[]string{"kind"},
	)

	out.buildInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "legacytsconv",
			Name:      "build_info",
			Help:      "Indicates build info of the current running binary.",
		},
		[]string{"version", "timestamp"},
	)

	out.conversionsTotal.WithLabelValues("ok")
	out.conversionsTotal.WithLabelValues("error")
	out.buildInfo.WithLabelValues(version, buildTimestamp).Add(1)

	return out
}

// ConversionStart begins timing one conversion. Call the returned
// function with the outcome ("ok" or "error") once it finishes.
func (m *Metrics) ConversionStart() func(outcome string) {
	if m == nil || m.conversionDuration == nil {
		return func(string) {}
	}
	start := time.Now()
	return func(outcome string) {
		m.conversionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		m.conversionsTotal.WithLabelValues(outcome).Inc()
	}
}

// FormatErrorSeen increments the counter for a rejected conversion's
// FormatError kind.
func (m *Metrics) FormatErrorSeen(kind string) {
	if m == nil || m.formatErrorsTotal == nil {
		return
	}
	m.formatErrorsTotal.WithLabelValues(kind).Inc()
}

// Handler returns the HTTP handler serving the registered metrics.
func (m *Metrics) Handler() http.Handler {
	registerer := prometheus.DefaultRegisterer
	gatherer := prometheus.DefaultGatherer
	if m.registry != nil {
		registerer = m.registry
		gatherer = m.registry
	}
	return promhttp.InstrumentMetricHandler(registerer, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// Serve starts an HTTP server exposing /metrics at addr. The returned
// stop function shuts the server down within the given timeout; the
// returned channel reports a non-nil error if ListenAndServe fails.
func Serve(addr string, m *Metrics) (stop func(time.Duration), failure <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		TLSNextProto: make(map[string]func(*http.Server, *tls.Conn, http.Handler)),
	}

	stop = func(timeout time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = srv.Shutdown(ctx) //nolint:errcheck
	}

	result := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		if err := srv.ListenAndServe(); err != nil {
			select {
			case result <- err:
			default:
			}
		}
		close(result)
	}()
	<-ready

	return stop, result
}
