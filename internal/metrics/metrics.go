package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics records order backend traffic and business events.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	purchases *prometheus.CounterVec
	signIns   *prometheus.CounterVec
}

// NewHTTPMetrics registers the backend metrics on reg. A nil registerer
// yields a recorder whose methods do nothing.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mute_http_requests_total",
		Help: "HTTP requests served, by route and status.",
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mute_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	purchases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mute_purchases_total",
		Help: "Purchase submissions by outcome.",
	}, []string{"outcome"})
	signIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mute_sign_ins_total",
		Help: "Sign-in and registration attempts by kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(requests, duration, purchases, signIns)
	return &HTTPMetrics{
		requests:  requests,
		duration:  duration,
		purchases: purchases,
		signIns:   signIns,
	}
}

func (m *HTTPMetrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncPurchase counts a purchase attempt; outcome is "stored" or a failure
// reason such as "unknown_customer".
func (m *HTTPMetrics) IncPurchase(outcome string) {
	if m == nil || m.purchases == nil {
		return
	}
	m.purchases.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *HTTPMetrics) IncSignIn(kind, outcome string) {
	if m == nil || m.signIns == nil {
		return
	}
	m.signIns.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// Handler exposes gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
