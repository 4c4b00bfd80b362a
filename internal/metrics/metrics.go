package metrics

import (
	"net/http"
	"strconv"
	"time"

	"alertbridge/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertbridge"

// Collector exposes Prometheus metrics for inbound HTTP requests and
// connector activity. It implements service.Recorder.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	scopeGranted    *prometheus.GaugeVec
}

// NewCollector constructs a collector on its own registry.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "alerts_ingested_total",
			Help:      "Inbound alerts normalized per connector type.",
		}, []string{"type", "severity", "duplicate"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "dispatches_total",
			Help:      "Outbound dispatches per connector type and outcome.",
		}, []string{"type", "path", "outcome"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "dispatch_duration_seconds",
			Help:      "Latency distribution for outbound dispatches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "path"}),
		scopeGranted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "scope_granted",
			Help:      "1 if the scope passed its last probe, 0 otherwise.",
		}, []string{"type", "scope"}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration, c.requestTotal,
		c.alertsTotal, c.dispatchTotal, c.dispatchLatency, c.scopeGranted,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics. Requests
// routed by chi are labelled with the route pattern, not the raw path.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

func (c *Collector) AlertIngested(connectorType string, severity models.Severity, duplicate bool) {
	c.alertsTotal.WithLabelValues(connectorType, string(severity), strconv.FormatBool(duplicate)).Inc()
}

func (c *Collector) Dispatched(connectorType string, path models.DispatchPath, outcome string, elapsed time.Duration) {
	c.dispatchTotal.WithLabelValues(connectorType, string(path), outcome).Inc()
	c.dispatchLatency.WithLabelValues(connectorType, string(path)).Observe(elapsed.Seconds())
}

func (c *Collector) Probed(connectorType string, scope string, granted bool) {
	v := 0.0
	if granted {
		v = 1
	}
	c.scopeGranted.WithLabelValues(connectorType, scope).Set(v)
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
