// Package observe holds the daemon's OpenTelemetry metric instruments and
// the optional Prometheus bridge behind the /metrics endpoint. Components
// record through the OTel API; without an installed provider the global
// no-op provider makes every call free, so instruments are always safe to
// use.
package observe

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/0xrin1/whisper-yabai-mac-os-x-sub000"

// latencyBuckets covers the collaborator call latencies (seconds).
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics holds every instrument the engine records. The underlying OTel
// types are safe for concurrent use.
type Metrics struct {
	// FramesCaptured counts frames appended to the rolling buffer.
	FramesCaptured metric.Int64Counter

	// FramesEvicted counts frames pushed out of the rolling buffer.
	FramesEvicted metric.Int64Counter

	// Dispatches counts trigger dispatch attempts. Attribute: outcome =
	// accepted|cooldown|busy|no_trigger|error.
	Dispatches metric.Int64Counter

	// Sessions counts recording sessions. Attributes: mode, outcome =
	// completed|busy|device_unavailable|no_audio|error.
	Sessions metric.Int64Counter

	// QueueDepth tracks pending items in the dispatch queue.
	QueueDepth metric.Int64UpDownCounter

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks command interpretation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram
}

// NewMetrics creates the instrument set on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	mtr := mp.Meter(meterName)
	var err error
	m := &Metrics{}

	if m.FramesCaptured, err = mtr.Int64Counter("whisperd.frames.captured",
		metric.WithDescription("Frames appended to the rolling buffer."),
	); err != nil {
		return nil, err
	}
	if m.FramesEvicted, err = mtr.Int64Counter("whisperd.frames.evicted",
		metric.WithDescription("Frames evicted from the rolling buffer."),
	); err != nil {
		return nil, err
	}
	if m.Dispatches, err = mtr.Int64Counter("whisperd.trigger.dispatches",
		metric.WithDescription("Trigger dispatch attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if m.Sessions, err = mtr.Int64Counter("whisperd.sessions",
		metric.WithDescription("Recording sessions by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if m.QueueDepth, err = mtr.Int64UpDownCounter("whisperd.queue.depth",
		metric.WithDescription("Recordings waiting for the consumer."),
	); err != nil {
		return nil, err
	}
	if m.STTDuration, err = mtr.Float64Histogram("whisperd.stt.duration",
		metric.WithDescription("Latency of transcription calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.LLMDuration, err = mtr.Float64Histogram("whisperd.llm.duration",
		metric.WithDescription("Latency of command interpretation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.TTSDuration, err = mtr.Float64Histogram("whisperd.tts.duration",
		metric.WithDescription("Latency of speech synthesis calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level Metrics built on the global provider.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordDispatch increments the dispatch counter with its outcome.
func (m *Metrics) RecordDispatch(ctx context.Context, outcome string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSession increments the session counter with mode and outcome.
func (m *Metrics) RecordSession(ctx context.Context, mode, outcome string) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

// InitProvider installs a metrics provider backed by the Prometheus
// exporter as the global OTel provider. Returns a shutdown function to be
// deferred from main.
func InitProvider(ctx context.Context, serviceName, serviceVersion string) (func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "whisperd"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	exp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }
