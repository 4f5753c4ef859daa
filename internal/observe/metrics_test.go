package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counted returns the int64 sum of name over data points whose attributes
// include every pair in match.
func counted(t *testing.T, rm metricdata.ResourceMetrics, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want int64 sum", name, met.Data)
	}
	var total int64
points:
	for _, dp := range sum.DataPoints {
		for _, kv := range match {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				continue points
			}
		}
		total += dp.Value
	}
	return total
}

func TestLatencyHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	for _, h := range []struct {
		name string
		rec  func(float64)
	}{
		{"fieldvoice.llm.duration", func(v float64) { m.LLMDuration.Record(ctx, v) }},
		{"fieldvoice.vision.duration", func(v float64) { m.VisionDuration.Record(ctx, v) }},
		{"fieldvoice.tts.duration", func(v float64) { m.TTSDuration.Record(ctx, v) }},
		{"fieldvoice.stt.duration", func(v float64) { m.STTDuration.Record(ctx, v) }},
		{"fieldvoice.wav.encode.duration", func(v float64) { m.WAVEncodeDuration.Record(ctx, v) }},
		{"fieldvoice.http.request.duration", func(v float64) { m.HTTPRequestDuration.Record(ctx, v) }},
	} {
		h.rec(0.2)
		h.rec(12)

		met := findMetric(collect(t, reader), h.name)
		if met == nil {
			t.Errorf("%s: not recorded", h.name)
			continue
		}
		hist := met.Data.(metricdata.Histogram[float64])
		dp := hist.DataPoints[0]
		if dp.Count != 2 {
			t.Errorf("%s: count = %d, want 2", h.name, dp.Count)
		}
		if len(dp.Bounds) != len(LatencyBuckets) {
			t.Errorf("%s: %d bounds, want %d", h.name, len(dp.Bounds), len(LatencyBuckets))
		}
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "gemini", "tts", "ok")
	m.RecordProviderRequest(ctx, "gemini", "tts", "ok")
	m.RecordProviderRequest(ctx, "gemini", "tts", "error")
	m.RecordProviderError(ctx, "openai", "llm")
	m.RecordBreakerTransition(ctx, "gemini", "closed", "open")
	m.RecordFailover(ctx, "gemini", "openai")
	m.RecordFailover(ctx, "gemini", "openai")
	m.RecordSoilEvaluation(ctx, "hi", 3)
	m.RecordSoilEvaluation(ctx, "hi", 3)
	m.RecordSoilEvaluation(ctx, "en", 1)

	rm := collect(t, reader)
	tests := []struct {
		name   string
		metric string
		match  []attribute.KeyValue
		want   int64
	}{
		{"ok requests", "fieldvoice.provider.requests", []attribute.KeyValue{Attr("status", "ok")}, 2},
		{"error requests", "fieldvoice.provider.requests", []attribute.KeyValue{Attr("status", "error")}, 1},
		{"llm errors", "fieldvoice.provider.errors", []attribute.KeyValue{Attr("kind", "llm"), Attr("provider", "openai")}, 1},
		{"breaker opened", "fieldvoice.breaker.transitions", []attribute.KeyValue{Attr("to", "open")}, 1},
		{"failovers", "fieldvoice.provider.failovers", []attribute.KeyValue{Attr("from", "gemini"), Attr("to", "openai")}, 2},
		{"english reports", "fieldvoice.soil.evaluations", []attribute.KeyValue{Attr("lang", "en")}, 1},
		{"three findings", "fieldvoice.soil.evaluations", []attribute.KeyValue{attribute.Int("findings", 3)}, 2},
	}
	for _, tt := range tests {
		if got := counted(t, rm, tt.metric, tt.match...); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestAudioSeconds(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.AudioSeconds.Add(context.Background(), 1.5)
	m.AudioSeconds.Add(context.Background(), 0.5)

	met := findMetric(collect(t, reader), "fieldvoice.audio.produced")
	if met == nil {
		t.Fatal("audio seconds not recorded")
	}
	if got := met.Data.(metricdata.Sum[float64]).DataPoints[0].Value; got != 2 {
		t.Errorf("audio seconds = %v, want 2", got)
	}
}

func TestDefaultMetrics_Shared(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics must return one instance")
	}
}
