package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GateMetrics holds the instruments the evaluation path records on every
// verdict. Instruments are created once at startup; recording is cheap and
// never errors the request.
type GateMetrics struct {
	verdicts  metric.Int64Counter
	latencyMs metric.Float64Histogram
}

// NewGateMetrics creates the verdict instruments on the given scope.
func NewGateMetrics(scope string) (*GateMetrics, error) {
	meter := Meter(scope)

	verdicts, err := meter.Int64Counter("vigil.verdicts",
		metric.WithDescription("Verdicts emitted, by decision and reason"),
	)
	if err != nil {
		return nil, err
	}

	latencyMs, err := meter.Float64Histogram("vigil.governance_latency_ms",
		metric.WithDescription("End-to-end governance latency per request"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &GateMetrics{verdicts: verdicts, latencyMs: latencyMs}, nil
}

// RecordVerdict records one emitted verdict.
func (m *GateMetrics) RecordVerdict(ctx context.Context, decision, reason, domain string, latencyMs float64, certifiable bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("reason", reason),
		attribute.String("domain", domain),
		attribute.Bool("certifiable", certifiable),
	)
	m.verdicts.Add(ctx, 1, attrs)
	m.latencyMs.Record(ctx, latencyMs, attrs)
}
