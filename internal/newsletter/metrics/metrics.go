package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks newsletter broadcasts.
type Metrics struct {
	Dispatches       *prometheus.CounterVec
	Recipients       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailomat_newsletter_dispatches_total",
			Help: "Broadcast calls by outcome (complete, partial, replayed, rejected)",
		}, []string{"outcome"}),
		Recipients: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailomat_newsletter_recipients_total",
			Help: "Per-recipient results (delivered, failed, skipped)",
		}, []string{"result"}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailomat_newsletter_dispatch_duration_seconds",
			Help:    "Wall time of a broadcast fan-out",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

func (m *Metrics) ObserveDispatch(start time.Time) {
	m.DispatchDuration.Observe(time.Since(start).Seconds())
}
