// Package observe holds the fieldvoice telemetry: OpenTelemetry instruments,
// spans around advisory stages, trace-aware logging and the HTTP middleware.
//
// [InitProvider] installs the global providers and bridges metrics to the
// Prometheus registry behind /metrics. Production code records through
// [DefaultMetrics]; tests build their own [Metrics] with [NewMetrics] on an
// sdkmetric ManualReader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/fieldvoice"

// Metrics is the set of instruments fieldvoice records into. Attribute keys
// are listed per field; the Record helpers fill them in.
type Metrics struct {
	// Stage latencies, attribute "provider".
	LLMDuration       metric.Float64Histogram
	VisionDuration    metric.Float64Histogram
	TTSDuration       metric.Float64Histogram
	STTDuration       metric.Float64Histogram
	WAVEncodeDuration metric.Float64Histogram

	// ProviderRequests: "provider", "kind", "status" (ok or error).
	ProviderRequests metric.Int64Counter
	// ProviderErrors: "provider", "kind".
	ProviderErrors metric.Int64Counter

	// BreakerTransitions: "provider", "from", "to".
	BreakerTransitions metric.Int64Counter
	// Failovers counts requests handed to the next backend: "from", "to".
	Failovers metric.Int64Counter

	// SoilEvaluations: "lang", "findings".
	SoilEvaluations metric.Int64Counter
	// AudioSeconds is the playback length of every WAV produced.
	AudioSeconds metric.Float64Counter

	InFlightRequests metric.Int64UpDownCounter
	// HTTPRequestDuration: "method", "path" (route pattern), "status".
	HTTPRequestDuration metric.Float64Histogram
}

// instruments creates instruments on one meter and keeps every creation
// error, so NewMetrics can report them together.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) keep(name string, err error) {
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("observe: instrument %s: %w", name, err))
	}
}

func (in *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(LatencyBuckets...),
	)
	in.keep(name, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.keep(name, err)
	return c
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		LLMDuration:       in.latency("fieldvoice.llm.duration", "Latency of answering a spoken question."),
		VisionDuration:    in.latency("fieldvoice.vision.duration", "Latency of plant photo analysis."),
		TTSDuration:       in.latency("fieldvoice.tts.duration", "Latency of speech synthesis."),
		STTDuration:       in.latency("fieldvoice.stt.duration", "Latency of recording transcription."),
		WAVEncodeDuration: in.latency("fieldvoice.wav.encode.duration", "Time from synthesised PCM to a finished WAV file."),

		ProviderRequests:   in.counter("fieldvoice.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:     in.counter("fieldvoice.provider.errors", "Failed provider calls by provider and kind."),
		BreakerTransitions: in.counter("fieldvoice.breaker.transitions", "Circuit breaker state changes by provider."),
		Failovers:          in.counter("fieldvoice.provider.failovers", "Requests passed from a failing provider to the next one."),
		SoilEvaluations:    in.counter("fieldvoice.soil.evaluations", "Soil reports by language and number of findings."),
	}

	var err error
	m.AudioSeconds, err = in.meter.Float64Counter("fieldvoice.audio.produced",
		metric.WithDescription("Playback length of generated speech."),
		metric.WithUnit("s"),
	)
	in.keep("fieldvoice.audio.produced", err)

	m.InFlightRequests, err = in.meter.Int64UpDownCounter("fieldvoice.http.in_flight",
		metric.WithDescription("HTTP requests currently being served."),
	)
	in.keep("fieldvoice.http.in_flight", err)

	m.HTTPRequestDuration = in.latency("fieldvoice.http.request.duration", "HTTP request latency by method, route and status.")

	if len(in.errs) > 0 {
		return nil, errors.Join(in.errs...)
	}
	return m, nil
}

// DefaultMetrics returns the process-wide [Metrics] on the global meter
// provider. Call it after [InitProvider] so the instruments reach Prometheus.
var DefaultMetrics = sync.OnceValue(func() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
})

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordBreakerTransition counts a breaker moving between states.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, from, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("from", from), Attr("to", to)))
}

// RecordFailover counts a request moving from one backend to the next.
func (m *Metrics) RecordFailover(ctx context.Context, from, to string) {
	m.Failovers.Add(ctx, 1, metric.WithAttributes(Attr("from", from), Attr("to", to)))
}

// RecordSoilEvaluation counts one soil report.
func (m *Metrics) RecordSoilEvaluation(ctx context.Context, lang string, findings int) {
	m.SoilEvaluations.Add(ctx, 1, metric.WithAttributes(
		Attr("lang", lang), attribute.Int("findings", findings)))
}
