package telemetry

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationName = "github.com/yukikurage/annotation-api"

var (
	meter = otel.Meter(instrumentationName)

	annotationsSubmitted = mustCounter("annotations.submitted", "Annotations written by annotators")
	reviewsApplied       = mustCounter("reviews.applied", "Review decisions applied to annotations")
	exportsCompleted     = mustCounter("exports.completed", "Export jobs that produced an archive")
	exportsFailed        = mustCounter("exports.failed", "Export jobs that ended in failure")
)

func mustCounter(name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("{event}"))
	if err != nil {
		panic(fmt.Sprintf("telemetry: create counter %s: %v", name, err))
	}
	return counter
}

// Setup installs a stdout metric exporter as the global meter provider when
// enabled. The returned function flushes and stops it.
func Setup(enabled bool, interval time.Duration) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)
	log.WithField("interval", interval.String()).Info("metrics exporter started")

	return provider.Shutdown, nil
}

func AnnotationSubmitted(ctx context.Context, kind string, draft bool) {
	annotationsSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("draft", draft),
	))
}

func ReviewsApplied(ctx context.Context, decision string, count int) {
	reviewsApplied.Add(ctx, int64(count), metric.WithAttributes(attribute.String("decision", decision)))
}

// ExportFinished counts a finished export job by format and outcome
func ExportFinished(ctx context.Context, format string, failed bool) {
	attrs := metric.WithAttributes(attribute.String("format", format))
	if failed {
		exportsFailed.Add(ctx, 1, attrs)
		return
	}
	exportsCompleted.Add(ctx, 1, attrs)
}
