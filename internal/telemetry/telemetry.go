// =============================================================================
// MigrateFlow OpenTelemetry Setup
// =============================================================================
// One migrateflow invocation is one OTel service instance. The resource names
// the command, the module and the target database system so that spans from
// the migration steps can be grouped per run. When telemetry is disabled the
// global providers stay noop.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/BaSui01/migrateflow/config"
	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const defaultServiceName = "migrateflow"

// Resource attribute keys specific to a migration run.
const (
	CommandKey = attribute.Key("migrateflow.command")
	ModuleKey  = attribute.Key("migrateflow.module")
)

// Run describes the invocation the providers are created for.
type Run struct {
	Command string
	Module  string
	Driver  string
	Version string
}

// Providers holds the OTel SDK TracerProvider and MeterProvider.
// When telemetry is disabled, both fields are nil and Shutdown is a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init initializes the OTel SDK for one run. Spans are exported through a
// batcher, so callers must Shutdown before the process exits.
func Init(cfg config.TelemetryConfig, run Run, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	ctx := context.Background()

	res, err := newResource(ctx, cfg, run)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	// The periodic reader also flushes on Shutdown, which is the common path for a CLI run.
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	// An unreachable collector must not interleave with command output.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Debug("otel export error", zap.Error(err))
	}))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", serviceName(cfg)),
		zap.String("command", run.Command),
		zap.String("module", run.Module),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

// newResource builds the resource of a run. Host attributes and
// OTEL_RESOURCE_ATTRIBUTES are merged in; a host that cannot be detected
// leaves a partial resource, which is still used.
func newResource(ctx context.Context, cfg config.TelemetryConfig, run Run) (*resource.Resource, error) {
	version := run.Version
	if version == "" {
		version = buildVersion()
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName(cfg)),
			semconv.ServiceVersion(version),
			semconv.ServiceInstanceID(uuid.NewString()),
			dbSystem(run.Driver),
			CommandKey.String(run.Command),
			ModuleKey.String(run.Module),
		),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

func serviceName(cfg config.TelemetryConfig) string {
	if cfg.ServiceName == "" {
		return defaultServiceName
	}
	return cfg.ServiceName
}

// dbSystem maps a configured driver name to its db.system value.
func dbSystem(driver string) attribute.KeyValue {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg":
		return semconv.DBSystemPostgreSQL
	case "mysql":
		return semconv.DBSystemMySQL
	case "mariadb":
		return semconv.DBSystemMariaDB
	case "sqlite", "sqlite3":
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemOtherSQL
	}
}

// Shutdown flushes pending spans/metrics and closes exporters.
// Safe to call on noop Providers (nil tp/mp).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion extracts the module version from Go build info.
// Falls back to "dev" if unavailable.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
