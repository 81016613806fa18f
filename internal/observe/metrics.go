// Package observe provides application-wide observability primitives for
// monitome: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all monitome metrics.
const meterName = "github.com/MrWong99/monitome"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Realtime transcription ---

	// FramesCaptured counts audio frames handed to the frame queue.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts frames evicted from a full frame queue.
	FramesDropped metric.Int64Counter

	// ChunksSent counts audio chunks transmitted to the STT endpoint.
	ChunksSent metric.Int64Counter

	// Commits counts chunks sent with commit=true.
	Commits metric.Int64Counter

	// STTEvents counts inbound STT events. Use with attribute:
	//   attribute.String("type", ...)
	STTEvents metric.Int64Counter

	// ActiveSessions tracks live realtime transcription sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Screen analysis ---

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// AnalysisDuration tracks end-to-end analysis latency. Use with attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	AnalysisDuration metric.Float64Histogram

	// ActivitiesStored counts screen activities persisted to the store.
	ActivitiesStored metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Vision
// completions routinely take several seconds, hence the long tail.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Transcription counters.
	if met.FramesCaptured, err = m.Int64Counter("monitome.audio.frames_captured",
		metric.WithDescription("Total audio frames captured and enqueued."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("monitome.audio.frames_dropped",
		metric.WithDescription("Total audio frames evicted from a full queue."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSent, err = m.Int64Counter("monitome.stt.chunks_sent",
		metric.WithDescription("Total audio chunks sent to the STT endpoint."),
	); err != nil {
		return nil, err
	}
	if met.Commits, err = m.Int64Counter("monitome.stt.commits",
		metric.WithDescription("Total manual commits sent to the STT endpoint."),
	); err != nil {
		return nil, err
	}
	if met.STTEvents, err = m.Int64Counter("monitome.stt.events",
		metric.WithDescription("Total inbound STT events by type."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("monitome.stt.active_sessions",
		metric.WithDescription("Number of live realtime transcription sessions."),
	); err != nil {
		return nil, err
	}

	// Analysis.
	if met.LLMDuration, err = m.Float64Histogram("monitome.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("monitome.analysis.duration",
		metric.WithDescription("Latency of screen analysis operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActivitiesStored, err = m.Int64Counter("monitome.activities.stored",
		metric.WithDescription("Total screen activities persisted."),
	); err != nil {
		return nil, err
	}

	// Providers.
	if met.ProviderRequests, err = m.Int64Counter("monitome.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("monitome.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("monitome.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route, and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSTTEvent counts one inbound STT event of the given type.
func (m *Metrics) RecordSTTEvent(ctx context.Context, eventType string) {
	m.STTEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordAnalysis records the latency and outcome of one analysis operation.
func (m *Metrics) RecordAnalysis(ctx context.Context, operation string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AnalysisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}
