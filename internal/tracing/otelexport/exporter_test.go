package otelexport

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestNew_UnknownProtocol(t *testing.T) {
	_, err := New(context.Background(), Config{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestExporter_NilIsNoop(t *testing.T) {
	var exp *Exporter
	_, span := exp.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("nil exporter should hand out no-op spans")
	}
	span.End()
	exp.Install()
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewWithSpanExporter_RecordsSpans(t *testing.T) {
	rec := tracetest.NewInMemoryExporter()
	exp := NewWithSpanExporter(rec, Config{ServiceName: "worker-test"})
	defer exp.Shutdown(context.Background())

	_, span := exp.Tracer("jobagent/agent").Start(context.Background(), "agent.run")
	span.End()

	spans := rec.GetSpans()
	if len(spans) != 1 || spans[0].Name != "agent.run" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	found := false
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" && kv.Value.AsString() == "worker-test" {
			found = true
		}
	}
	if !found {
		t.Error("service.name resource attribute missing")
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(0).Description(); got != "AlwaysOnSampler" {
		t.Errorf("sampler(0) = %s", got)
	}
	if got := sampler(1.5).Description(); got != "AlwaysOnSampler" {
		t.Errorf("sampler(1.5) = %s", got)
	}
	if got := sampler(0.25).Description(); got == "AlwaysOnSampler" {
		t.Errorf("sampler(0.25) should be ratio based, got %s", got)
	}
}

func TestServiceName_Default(t *testing.T) {
	if got := serviceName(Config{}); got != defaultServiceName {
		t.Errorf("serviceName = %q", got)
	}
}
