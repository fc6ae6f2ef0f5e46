package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks Stripe webhook processing latency and the audit log backlog.
type WebhookMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func NewWebhookMetrics(cfg Config) (*WebhookMetrics, error) {
	return newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) (*WebhookMetrics, error) {
	constLabels := serviceLabels(cfg)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "market_stripe_webhook_duration_seconds",
		Help:        "Time spent verifying and applying a Stripe event.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"source", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "market_stripe_webhook_failures_total",
		Help:        "Verified Stripe events left unprocessed in the audit log.",
		ConstLabels: constLabels,
	}, []string{"source", "event_type"})

	var err error
	if duration, err = registerOrReuse(registerer, duration); err != nil {
		return nil, err
	}
	if failures, err = registerOrReuse(registerer, failures); err != nil {
		return nil, err
	}
	return &WebhookMetrics{duration: duration, failures: failures}, nil
}

func (m *WebhookMetrics) ObserveDuration(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(source, outcome).Observe(elapsed.Seconds())
}

func (m *WebhookMetrics) IncFailure(source, eventType string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(source, eventType).Inc()
}
