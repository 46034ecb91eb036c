package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the subscribe and confirm workflow.
type Metrics struct {
	SubscriptionsCreated   prometheus.Counter
	SubscriptionsConfirmed prometheus.Counter
	ConfirmationEmails     *prometheus.CounterVec
	SubscribeDuration      prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubscriptionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "mailomat_subscriptions_created_total",
			Help: "Subscriptions stored as pending confirmation",
		}),
		SubscriptionsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Name: "mailomat_subscriptions_confirmed_total",
			Help: "Successful confirmation requests, repeats included",
		}),
		ConfirmationEmails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailomat_confirmation_emails_total",
			Help: "Confirmation emails by outcome",
		}, []string{"outcome"}),
		SubscribeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailomat_subscribe_duration_seconds",
			Help:    "Duration of Subscribe including the confirmation email",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// ObserveSubscribe records the duration of a Subscribe call started at start.
func (m *Metrics) ObserveSubscribe(start time.Time) {
	m.SubscribeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncConfirmationEmail(outcome string) {
	m.ConfirmationEmails.WithLabelValues(outcome).Inc()
}
