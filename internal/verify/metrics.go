package verify

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ppiankov/groundcheck/internal/model"
)

const instrumentationName = "github.com/ppiankov/groundcheck/internal/verify"

// metrics holds the verifier instruments
type metrics struct {
	citations     metric.Int64Counter
	malformed     metric.Int64Counter
	confidence    metric.Float64Histogram
	passes        metric.Int64Counter
	passDuration  metric.Float64Histogram
	persistErrors metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) (*metrics, error) {
	meter := provider.Meter(instrumentationName)
	m := &metrics{}
	var err error

	m.citations, err = meter.Int64Counter(
		"groundcheck_citations_total",
		metric.WithDescription("Citations verified by match method and outcome"),
		metric.WithUnit("{citation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create citations_total: %w", err)
	}

	m.malformed, err = meter.Int64Counter(
		"groundcheck_malformed_citations_total",
		metric.WithDescription("Candidates rejected as malformed or recovered from a panic"),
		metric.WithUnit("{citation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create malformed_citations_total: %w", err)
	}

	m.confidence, err = meter.Float64Histogram(
		"groundcheck_citation_confidence",
		metric.WithDescription("Per-citation confidence distribution"),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create citation_confidence: %w", err)
	}

	m.passes, err = meter.Int64Counter(
		"groundcheck_passes_total",
		metric.WithDescription("Verification passes by artifact and publish decision"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create passes_total: %w", err)
	}

	m.passDuration, err = meter.Float64Histogram(
		"groundcheck_pass_duration_seconds",
		metric.WithDescription("Verification pass duration including persistence"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create pass_duration_seconds: %w", err)
	}

	m.persistErrors, err = meter.Int64Counter(
		"groundcheck_persistence_errors_total",
		metric.WithDescription("Passes that could not be persisted"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create persistence_errors_total: %w", err)
	}

	return m, nil
}

func (m *metrics) recordCitation(ctx context.Context, c model.VerifiedCitation, malformed bool) {
	m.citations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", string(c.MatchMethod)),
		attribute.Bool("verified", c.Verified),
	))
	m.confidence.Record(ctx, c.Confidence)
	if malformed {
		m.malformed.Add(ctx, 1)
	}
}

func (m *metrics) recordPass(ctx context.Context, artifact string, summary model.GroundingSummary, elapsed time.Duration) {
	m.passes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("artifact", artifact),
		attribute.Bool("can_publish", summary.CanPublish),
	))
	m.passDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("artifact", artifact),
	))
}

func (m *metrics) recordPersistError(ctx context.Context, artifact string) {
	m.persistErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("artifact", artifact),
	))
}
