package migration

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/migrateflow/internal/migration"

// Recorder receives per-migration outcomes. *metrics.Collector implements it.
type Recorder interface {
	ObserveMigration(module, direction, status string, duration time.Duration)
	SetApplied(module string, count int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMigration(string, string, string, time.Duration) {}
func (nopRecorder) SetApplied(string, int)                                  {}

// instruments bundles the tracer and the duration histogram.
type instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	runs     metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	in.duration, err = meter.Float64Histogram("migrateflow.migration.duration",
		metric.WithDescription("Duration of a single migration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120))
	if err != nil {
		return nil, err
	}

	in.runs, err = meter.Int64Counter("migrateflow.operation.total",
		metric.WithDescription("Total number of manager operations"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	return in, nil
}

// startOp opens the span of a manager operation.
func (in *instruments) startOp(ctx context.Context, op, module, runID string) (context.Context, trace.Span) {
	in.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("module", module)))
	return in.tracer.Start(ctx, "migration."+op,
		trace.WithAttributes(
			attribute.String("migration.module", module),
			attribute.String("migration.run_id", runID),
		))
}

// startStep opens the span of one migration inside an operation.
func (in *instruments) startStep(ctx context.Context, direction string, m Migration) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "migration."+direction+".step",
		trace.WithAttributes(
			attribute.String("migration.name", m.Name),
			attribute.Int64("migration.revision", int64(m.Revision)),
			attribute.String("migration.module", m.Module),
		))
}

// endStep records the outcome of one migration.
func (in *instruments) endStep(ctx context.Context, span trace.Span, direction string, m Migration, d time.Duration, err error) {
	defer span.End()
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	in.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("module", m.Module),
		attribute.String("direction", direction),
		attribute.String("status", status),
	))
}

func endOp(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
