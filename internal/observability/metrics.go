package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hwdesk"

type moduleMetrics struct {
	storeOpsTotal      *prometheus.CounterVec
	storeOpDuration    *prometheus.HistogramVec
	storeParseFailures *prometheus.CounterVec

	sessionAuthenticated prometheus.Gauge
	sessionClearsTotal   *prometheus.CounterVec
	tokensIssuedTotal    prometheus.Counter

	gatewayRequestsTotal   *prometheus.CounterVec
	gatewayRequestDuration *prometheus.HistogramVec

	guardDecisionsTotal *prometheus.CounterVec

	backendRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			storeOpsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_store_operations_total",
					Help:      "Persistent session store operations by backend, operation and status.",
				},
				[]string{"backend", "op", "status"},
			),
			storeOpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "session_store_operation_duration_seconds",
					Help:      "Persistent session store operation duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"backend", "op"},
			),
			storeParseFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_store_parse_failures_total",
					Help:      "Persisted session entries discarded because they could not be decoded.",
				},
				[]string{"key"},
			),
			sessionAuthenticated: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "session_authenticated",
					Help:      "1 while the client holds a bearer token, 0 otherwise.",
				},
			),
			sessionClearsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_clears_total",
					Help:      "Session clears by reason.",
				},
				[]string{"reason"},
			),
			tokensIssuedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_tokens_stamped_total",
					Help:      "New bearer tokens accepted and stamped with an expiry.",
				},
			),
			gatewayRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "gateway_requests_total",
					Help:      "Outbound requests by method and classified outcome.",
				},
				[]string{"method", "outcome"},
			),
			gatewayRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "gateway_request_duration_seconds",
					Help:      "Outbound request duration in seconds by method.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"method"},
			),
			guardDecisionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "route_guard_decisions_total",
					Help:      "Route guard decisions by action.",
				},
				[]string{"action"},
			),
			backendRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "mock_backend_requests_total",
					Help:      "Requests served by the mock backend by route and envelope code.",
				},
				[]string{"route", "code"},
			),
		}

		prometheus.MustRegister(
			m.storeOpsTotal,
			m.storeOpDuration,
			m.storeParseFailures,
			m.sessionAuthenticated,
			m.sessionClearsTotal,
			m.tokensIssuedTotal,
			m.gatewayRequestsTotal,
			m.gatewayRequestDuration,
			m.guardDecisionsTotal,
			m.backendRequestsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordStoreOperation(backend, op string, duration time.Duration, success bool) {
	m := getMetrics()
	m.storeOpsTotal.WithLabelValues(backend, op, statusLabel(success)).Inc()
	m.storeOpDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
}

func RecordStoreParseFailure(key string) {
	getMetrics().storeParseFailures.WithLabelValues(key).Inc()
}

func SetSessionAuthenticated(authenticated bool) {
	value := 0.0
	if authenticated {
		value = 1.0
	}
	getMetrics().sessionAuthenticated.Set(value)
}

func RecordSessionCleared(reason string) {
	getMetrics().sessionClearsTotal.WithLabelValues(reason).Inc()
}

func RecordTokenStamped() {
	getMetrics().tokensIssuedTotal.Inc()
}

func RecordGatewayRequest(method, outcome string, duration time.Duration) {
	m := getMetrics()
	m.gatewayRequestsTotal.WithLabelValues(method, outcome).Inc()
	m.gatewayRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordGuardDecision(action string) {
	getMetrics().guardDecisionsTotal.WithLabelValues(action).Inc()
}

func RecordBackendRequest(route string, code int) {
	getMetrics().backendRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
