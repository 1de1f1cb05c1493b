// Package metrics exposes Prometheus collectors for the order and payment core.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "malistore"

// Registry owns every collector of the process. Each Registry uses its own prometheus.Registry
// so tests can build one per case.
type Registry struct {
	reg *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	reconciliation *prometheus.CounterVec
	decrementFails prometheus.Counter
	stockSweeps    *prometheus.CounterVec
	lowStock       prometheus.Gauge
	authChecks     *prometheus.CounterVec
}

// New registers the collectors, including the Go runtime and process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "reconciliations_total",
			Help:      "Provider outcomes applied to payments, by outcome and result.",
		}, []string{"outcome", "result"}),
		decrementFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "decrement_failures_total",
			Help:      "Paid orders whose stock decrement failed and needs manual follow-up.",
		}),
		stockSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "stock_sweeps_total",
			Help:      "Low-stock sweeps by result.",
		}, []string{"result"}),
		lowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "low_stock_products",
			Help:      "Active products at or below the alert threshold in the last sweep.",
		}),
		authChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "verifications_total",
			Help:      "Token verifications by kind and reason.",
		}, []string{"kind", "success", "reason"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpLatency,
		r.reconciliation,
		r.decrementFails,
		r.stockSweeps,
		r.lowStock,
		r.authChecks,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveReconciliation counts one reconcile call.
func (r *Registry) ObserveReconciliation(outcome string, result string) {
	r.reconciliation.WithLabelValues(outcome, result).Inc()
}

// ObserveDecrementFailure counts a paid order left with undecremented stock.
func (r *Registry) ObserveDecrementFailure() {
	r.decrementFails.Inc()
}

func (r *Registry) ObserveStockSweep(lowStock int, err error) {
	if err != nil {
		r.stockSweeps.WithLabelValues("error").Inc()
		return
	}
	r.stockSweeps.WithLabelValues("ok").Inc()
	r.lowStock.Set(float64(lowStock))
}

// RecordVerification satisfies auth.MetricsRecorder.
func (r *Registry) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	r.authChecks.WithLabelValues(kind, strconv.FormatBool(success), reason).Inc()
}

// Middleware records request counts and latency labelled by the chi route pattern. Unmatched
// paths share one label so arbitrary URLs cannot grow the series set.
func (r *Registry) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, req)

			route := "unmatched"
			if rctx := chi.RouteContext(req.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			r.httpRequests.WithLabelValues(req.Method, route, strconv.Itoa(rec.status)).Inc()
			r.httpLatency.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}
