package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	if tp.Enabled() {
		t.Fatal("expected disabled provider")
	}
	if tp.Tracer("test") == nil {
		t.Fatal("expected a tracer from a disabled provider")
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestNewTracerProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  TracerConfig
	}{
		{"missing service name", TracerConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: 1}},
		{"missing endpoint", TracerConfig{Enabled: true, ServiceName: "userdir", SampleRate: 1}},
		{"negative sample rate", TracerConfig{Enabled: true, ServiceName: "userdir", Endpoint: "localhost:4317", SampleRate: -0.1}},
		{"sample rate above one", TracerConfig{Enabled: true, ServiceName: "userdir", Endpoint: "localhost:4317", SampleRate: 1.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTracerProvider(context.Background(), tt.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed.
	tp, err := NewTracerProvider(context.Background(), TracerConfig{
		Enabled:     true,
		ServiceName: "userdir",
		Environment: "test",
		Endpoint:    "localhost:4317",
		SampleRate:  0.5,
	})
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	if !tp.Enabled() {
		t.Fatal("expected enabled provider")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tp.Shutdown(ctx)
}

func TestNewTracerProvider_CustomExporter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(), TracerConfig{
		Enabled:     true,
		ServiceName: "userdir",
		StorageType: "memory",
		SampleRate:  1,
		Exporter:    exporter,
	})
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer(InstrumentationName).Start(context.Background(), "probe")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	found := false
	for _, attr := range spans[0].Resource.Attributes() {
		if attr.Key == StorageTypeKey && attr.Value.AsString() == "memory" {
			found = true
		}
	}
	if !found {
		t.Fatalf("resource lacks %s: %v", StorageTypeKey, spans[0].Resource.Attributes())
	}
}

func TestNewTracerProvider_DisabledRecordsNothing(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracerConfig{})
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	_, span := tp.Tracer(InstrumentationName).Start(context.Background(), "probe")
	defer span.End()
	if span.IsRecording() {
		t.Fatal("expected a non-recording span from a disabled provider")
	}
}
