// Package observe provides application-wide observability primitives for the
// hands-free engine: OpenTelemetry metrics, tracing, structured logging, and
// HTTP middleware that ties them together.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/mia21com/handsfree"

// Segment discard reasons used with [Metrics.RecordSegmentDiscarded].
const (
	DiscardReasonTooShort    = "too_short"
	DiscardReasonSuppression = "suppression"
	DiscardReasonRestart     = "restart"
	DiscardReasonShutdown    = "shutdown"
)

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks transcription gateway latency.
	TranscriptionDuration metric.Float64Histogram

	// SegmentDuration tracks the speech duration of emitted segments.
	SegmentDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts audio frames run through the VAD.
	FramesProcessed metric.Int64Counter

	// SegmentsEmitted counts speech segments handed to the transcriber.
	SegmentsEmitted metric.Int64Counter

	// SegmentsDiscarded counts segments dropped before transcription.
	// Use with attribute.String("reason", ...).
	SegmentsDiscarded metric.Int64Counter

	// TranscriptionErrors counts failed transcription requests.
	TranscriptionErrors metric.Int64Counter

	// PlaybackItems counts playback queue items. Use with
	// attribute.String("status", "played"|"failed"|"dropped").
	PlaybackItems metric.Int64Counter

	// CaptureRestarts counts capture source restart attempts. Use with
	// attribute.String("reason", ...).
	CaptureRestarts metric.Int64Counter

	// SuppressionTransitions counts suppression state changes. Use with
	// attribute.String("state", "on"|"off").
	SuppressionTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveTranscriptions tracks in-flight transcription requests.
	ActiveTranscriptions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("handsfree.transcription.duration",
		metric.WithDescription("Latency of transcription requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("handsfree.segment.duration",
		metric.WithDescription("Speech duration of emitted segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("handsfree.frames.processed",
		metric.WithDescription("Total audio frames classified by the VAD."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("handsfree.segments.emitted",
		metric.WithDescription("Total speech segments handed to the transcriber."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("handsfree.segments.discarded",
		metric.WithDescription("Total segments dropped before transcription, by reason."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("handsfree.transcription.errors",
		metric.WithDescription("Total failed transcription requests."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackItems, err = m.Int64Counter("handsfree.playback.items",
		metric.WithDescription("Total playback queue items by status."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("handsfree.capture.restarts",
		metric.WithDescription("Total capture source restart attempts by reason."),
	); err != nil {
		return nil, err
	}
	if met.SuppressionTransitions, err = m.Int64Counter("handsfree.suppression.transitions",
		metric.WithDescription("Total suppression state changes."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTranscriptions, err = m.Int64UpDownCounter("handsfree.transcriptions.active",
		metric.WithDescription("Number of in-flight transcription requests."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("handsfree.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// RecordSegmentEmitted records a segment emission along with its speech
// duration in seconds.
func (m *Metrics) RecordSegmentEmitted(ctx context.Context, durationSeconds float64) {
	m.SegmentsEmitted.Add(ctx, 1)
	m.SegmentDuration.Record(ctx, durationSeconds)
}

// RecordSegmentDiscarded records a discarded segment with the standard
// reason attribute.
func (m *Metrics) RecordSegmentDiscarded(ctx context.Context, reason string) {
	m.SegmentsDiscarded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordPlaybackItem records a playback queue item outcome.
func (m *Metrics) RecordPlaybackItem(ctx context.Context, status string) {
	m.PlaybackItems.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCaptureRestart records a capture restart attempt with its trigger.
func (m *Metrics) RecordCaptureRestart(ctx context.Context, reason string) {
	m.CaptureRestarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordSuppression records a suppression transition. on is true when
// capture suppression engages.
func (m *Metrics) RecordSuppression(ctx context.Context, on bool) {
	state := "off"
	if on {
		state = "on"
	}
	m.SuppressionTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}
