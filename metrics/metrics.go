package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeIgnored = "ignored"
)

// Metrics holds the business counters. All methods are safe on a nil
// receiver so callers never need to check whether metrics are wired.
type Metrics struct {
	OrdersCreated   *prometheus.CounterVec
	OrderFailures   *prometheus.CounterVec
	GatewayRequests *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec
	OrderCreate     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders returned by the creation engine, by path taken.",
		}, []string{"path"}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_failures_total",
			Help:      "Rejected order creations, by reason code.",
		}, []string{"reason"}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Outbound payment gateway calls.",
		}, []string{"provider", "operation", "outcome"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Provider callbacks processed, by mapped status.",
		}, []string{"status", "outcome"}),
		OrderCreate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_create_seconds",
			Help:      "Order creation latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.OrdersCreated, m.OrderFailures, m.GatewayRequests, m.WebhookEvents, m.OrderCreate)
	return m
}

// Order creation paths.
const (
	PathFresh      = "fresh"
	PathIdempotent = "idempotent"
	PathMerged     = "merged"
)

func (m *Metrics) OrderCreated(path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(path).Inc()
	m.OrderCreate.Observe(elapsed.Seconds())
}

func (m *Metrics) OrderFailed(reason string) {
	if m == nil {
		return
	}
	m.OrderFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) GatewayCall(provider, operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	m.GatewayRequests.WithLabelValues(provider, operation, outcome).Inc()
}

func (m *Metrics) WebhookEvent(status, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(status, outcome).Inc()
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
