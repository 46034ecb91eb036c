package email

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Sender with a span and send metrics per call.
type Instrumented struct {
	next     Sender
	provider string
	tracer   trace.Tracer
	sent     *prometheus.CounterVec
	duration prometheus.Observer
}

func NewInstrumented(next Sender, provider string, reg prometheus.Registerer) *Instrumented {
	f := promauto.With(reg)
	return &Instrumented{
		next:     next,
		provider: provider,
		tracer:   otel.Tracer("mailomat/email"),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailomat_emails_sent_total",
			Help: "Outbound emails by provider and outcome",
		}, []string{"provider", "outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailomat_email_send_duration_seconds",
			Help:    "Duration of provider send calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (i *Instrumented) Send(ctx context.Context, msg Message) error {
	ctx, span := i.tracer.Start(ctx, "email.Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("email.provider", i.provider)),
	)
	defer span.End()

	start := time.Now()
	err := i.next.Send(ctx, msg)
	i.duration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		i.sent.WithLabelValues(i.provider, "failure").Inc()
		return err
	}
	i.sent.WithLabelValues(i.provider, "success").Inc()
	return nil
}
