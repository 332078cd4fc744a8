// Package metrics exposes Prometheus collectors for the calendar server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calendararchive/calendar-server/internal/store"
)

const namespace = "calendar"

// Metrics holds the server's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	eventWrites   *prometheus.CounterVec
	importRows    *prometheus.CounterVec
	backups       *prometheus.CounterVec
	streamClients *prometheus.GaugeVec
}

// New creates collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		eventWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "event_writes_total",
			Help:      "Committed event writes by operation and partition kind.",
		}, []string{"op", "partition"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Bulk import rows by outcome.",
		}, []string{"result"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "runs_total",
			Help:      "Backup runs by outcome.",
		}, []string{"result"}),
		streamClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected live stream clients by transport.",
		}, []string{"transport"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.eventWrites,
		m.importRows,
		m.backups,
		m.streamClients,
	)
	return m
}

// Registry returns the registry backing Handler, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. Requests are labeled by
// chi route pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveImport counts the rows of a finished import run.
func (m *Metrics) ObserveImport(imported, skipped, failed int) {
	m.importRows.WithLabelValues("imported").Add(float64(imported))
	m.importRows.WithLabelValues("skipped").Add(float64(skipped))
	m.importRows.WithLabelValues("failed").Add(float64(failed))
}

// ObserveBackup counts a backup run.
func (m *Metrics) ObserveBackup(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backups.WithLabelValues(result).Inc()
}

// StreamConnected adjusts the client gauge for transport by delta.
func (m *Metrics) StreamConnected(transport string, delta int) {
	m.streamClients.WithLabelValues(transport).Add(float64(delta))
}

// TrackStream keeps the client gauge for transport in step with the
// connections h is serving.
func (m *Metrics) TrackStream(transport string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.StreamConnected(transport, 1)
		defer m.StreamConnected(transport, -1)
		h.ServeHTTP(w, r)
	})
}

// ChangeEmitter counts store changes before passing them on.
type ChangeEmitter struct {
	metrics *Metrics
	next    store.EventEmitter
}

// ObserveChanges wraps next so every committed write is counted.
func (m *Metrics) ObserveChanges(next store.EventEmitter) *ChangeEmitter {
	if next == nil {
		next = store.NewNoopEmitter()
	}
	return &ChangeEmitter{metrics: m, next: next}
}

// Emit implements store.EventEmitter.
func (e *ChangeEmitter) Emit(event any) {
	if c, ok := event.(store.Change); ok {
		kind := "global"
		if c.Partition.Personal {
			kind = "personal"
		}
		e.metrics.eventWrites.WithLabelValues(string(c.Op), kind).Inc()
	}
	e.next.Emit(event)
}
