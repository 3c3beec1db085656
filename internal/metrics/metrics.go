package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the storefront exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CheckoutStarts    *prometheus.CounterVec
	PaymentReturns    *prometheus.CounterVec
	GatewayRequests   *prometheus.HistogramVec
	RateLookups       *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "checkout_starts_total",
			Help:      "Checkout start attempts by result.",
		}, []string{"result"}),
		PaymentReturns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "payment_returns_total",
			Help:      "Payment return callbacks by outcome.",
		}, []string{"status"}),
		GatewayRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		RateLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "currency_rate_lookups_total",
			Help:      "Exchange rate lookups by currency and source (cache or upstream).",
		}, []string{"currency", "source"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "notifications_total",
			Help:      "Order confirmation notifications by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.CheckoutStarts, m.PaymentReturns, m.GatewayRequests, m.RateLookups, m.NotificationsSent)
	return m
}

func (m *Metrics) CheckoutStarted(result string) {
	if m == nil {
		return
	}
	m.CheckoutStarts.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentReturned(status string) {
	if m == nil {
		return
	}
	m.PaymentReturns.WithLabelValues(status).Inc()
}

func (m *Metrics) GatewayCall(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.GatewayRequests.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RateLookup(currency, source string) {
	if m == nil {
		return
	}
	m.RateLookups.WithLabelValues(currency, source).Inc()
}

func (m *Metrics) Notification(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationsSent.WithLabelValues(result).Inc()
}
