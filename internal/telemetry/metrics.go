package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics groups the instruments recorded by the correlation engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	triggers         otelmetric.Int64Counter
	triggerDuration  otelmetric.Float64Histogram
	correlations     otelmetric.Int64Counter
	retentionDeleted otelmetric.Int64Counter
	sweepFailures    otelmetric.Int64Counter
	sweeps           otelmetric.Int64Counter
}

// NewMetrics creates the instruments on meter. Instrument errors are logged and
// leave that instrument unset.
func NewMetrics(meter otelmetric.Meter) *Metrics {
	m := &Metrics{}
	var err error
	m.triggers, err = meter.Int64Counter("enroller_triggers",
		otelmetric.WithDescription("Automation chain triggers by outcome"))
	if err != nil {
		log.Printf("telemetry: enroller_triggers: %v", err)
	}
	m.triggerDuration, err = meter.Float64Histogram("enroller_trigger_duration",
		otelmetric.WithDescription("Latency of outbound trigger calls"),
		otelmetric.WithUnit("s"))
	if err != nil {
		log.Printf("telemetry: enroller_trigger_duration: %v", err)
	}
	m.correlations, err = meter.Int64Counter("enroller_correlations",
		otelmetric.WithDescription("Inbound callbacks by channel and outcome"))
	if err != nil {
		log.Printf("telemetry: enroller_correlations: %v", err)
	}
	m.retentionDeleted, err = meter.Int64Counter("enroller_retention_deleted",
		otelmetric.WithDescription("Records purged by the retention sweep"))
	if err != nil {
		log.Printf("telemetry: enroller_retention_deleted: %v", err)
	}
	m.sweepFailures, err = meter.Int64Counter("enroller_retention_failures",
		otelmetric.WithDescription("Retention targets that failed during a sweep"))
	if err != nil {
		log.Printf("telemetry: enroller_retention_failures: %v", err)
	}
	m.sweeps, err = meter.Int64Counter("enroller_retention_sweeps",
		otelmetric.WithDescription("Completed retention sweep cycles"))
	if err != nil {
		log.Printf("telemetry: enroller_retention_sweeps: %v", err)
	}
	return m
}

func (m *Metrics) TriggerCompleted(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if m.triggers != nil {
		m.triggers.Add(ctx, 1, attrs)
	}
	if m.triggerDuration != nil {
		m.triggerDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *Metrics) Correlated(ctx context.Context, channel, outcome string) {
	if m == nil || m.correlations == nil {
		return
	}
	m.correlations.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RetentionPurged(ctx context.Context, category string, n int64) {
	if m == nil || m.retentionDeleted == nil || n <= 0 {
		return
	}
	m.retentionDeleted.Add(ctx, n, otelmetric.WithAttributes(attribute.String("category", category)))
}

func (m *Metrics) SweepFailed(ctx context.Context, category string) {
	if m == nil || m.sweepFailures == nil {
		return
	}
	m.sweepFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("category", category)))
}

func (m *Metrics) SweepCompleted(ctx context.Context) {
	if m == nil || m.sweeps == nil {
		return
	}
	m.sweeps.Add(ctx, 1)
}
