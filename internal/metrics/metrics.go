package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector exposed on /metrics. It satisfies
// order.Metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimited         *prometheus.CounterVec

	OrdersCreated      *prometheus.CounterVec
	OrdersFailed       *prometheus.CounterVec
	OrdersVoided       prometheus.Counter
	OrderValue         *prometheus.HistogramVec
	PaymentTransitions *prometheus.CounterVec
	CodeCollisions     prometheus.Counter
}

// New registers the collectors on reg with names prefixed by prefix.
func New(reg prometheus.Registerer, prefix string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"tier"},
		),
		OrdersCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_orders_created_total",
				Help: "Orders committed, by payment method",
			},
			[]string{"payment_method"},
		),
		OrdersFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_orders_failed_total",
				Help: "Create order attempts rejected, by error kind",
			},
			[]string{"kind"},
		),
		OrdersVoided: f.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_orders_voided_total",
				Help: "Orders voided",
			},
		),
		OrderValue: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_order_grand_total",
				Help:    "Grand total of committed orders",
				Buckets: prometheus.ExponentialBuckets(1000, 4, 10),
			},
			[]string{"payment_method"},
		),
		PaymentTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_payment_transitions_total",
				Help: "Payment status changes applied from gateway notifications",
			},
			[]string{"status"},
		),
		CodeCollisions: f.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_order_code_collisions_total",
				Help: "Order code unique violations that were retried",
			},
		),
	}
}

func (m *Metrics) OrderCreated(method string, grandTotal float64) {
	m.OrdersCreated.WithLabelValues(method).Inc()
	m.OrderValue.WithLabelValues(method).Observe(grandTotal)
}

func (m *Metrics) OrderFailed(kind string) {
	m.OrdersFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) OrderVoided() {
	m.OrdersVoided.Inc()
}

func (m *Metrics) PaymentTransition(status string) {
	m.PaymentTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) CodeCollision() {
	m.CodeCollisions.Inc()
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

func (m *Metrics) RecordRateLimited(tier string) {
	m.RateLimited.WithLabelValues(tier).Inc()
}
