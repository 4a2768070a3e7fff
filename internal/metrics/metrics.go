// Package metrics exposes prometheus instrumentation for the gateway:
// standard HTTP server metrics plus the domain counters operators page
// on (gateway decisions, cache effectiveness, verification failures).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	gatewayDecisions *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	originFetches    prometheus.Counter
	originErrors     prometheus.Counter
	verifyFailures   *prometheus.CounterVec
	loginTotal       *prometheus.CounterVec
	logoutTotal      prometheus.Counter
}

// New returns a fresh registry + standard collectors + gateway metrics.
// Safe labels only (method, route, code, outcome) to avoid cardinality
// explosions on URLs.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "version", "go_version"}),
		gatewayDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_decisions_total",
			Help: "Terminal gateway decisions by outcome (allowed|unauthenticated|forbidden)",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_lookups_total",
			Help: "Edge cache lookups by result (hit|miss|error)",
		}, []string{"result"}),
		originFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_origin_fetches_total",
			Help: "Total origin fetches on cache miss",
		}),
		originErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_origin_errors_total",
			Help: "Total failed origin fetches",
		}),
		verifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_failures_total",
			Help: "Verification failures by kind (validation|decrypt|mismatch|internal)",
		}, []string{"kind"}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Login attempts by result (success|rejected|invalid|error)",
		}, []string{"result"}),
		logoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logout_total",
			Help: "Total logout requests",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.httpPanicTotal,
		m.buildInfo,
		m.gatewayDecisions,
		m.cacheLookups,
		m.originFetches,
		m.originErrors,
		m.verifyFailures,
		m.loginTotal,
		m.logoutTotal,
	)

	m.reg = reg
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler serves the /metrics endpoint for the ops listener.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// SetBuildInfo publishes build metadata as a constant gauge.
func (m *ServerMetrics) SetBuildInfo(app, version, goVersion string) {
	m.buildInfo.WithLabelValues(app, version, goVersion).Set(1)
}

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

func (m *ServerMetrics) IncDecision(outcome string) {
	m.gatewayDecisions.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) IncCacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncOriginFetch() { m.originFetches.Inc() }
func (m *ServerMetrics) IncOriginError() { m.originErrors.Inc() }

func (m *ServerMetrics) IncVerifyFailure(kind string) {
	m.verifyFailures.WithLabelValues(kind).Inc()
}

func (m *ServerMetrics) IncLogin(result string) {
	m.loginTotal.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncLogout() { m.logoutTotal.Inc() }
