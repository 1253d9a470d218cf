package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (context.Context, *Provider) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return ctx, provider
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithSession("s-1").
		WithResource("attachment", "terms.pdf").
		WithAttachment("pdf", ExtractionResultFailed).
		Build()

	got := make(map[string]interface{})
	for _, attr := range attrs {
		got[string(attr.Key)] = attr.Value.AsInterface()
	}

	want := map[string]interface{}{
		SpanAttrSession:      "s-1",
		SpanAttrResourceType: "attachment",
		SpanAttrResourceID:   "terms.pdf",
		SpanAttrKind:         "pdf",
		SpanAttrResult:       ExtractionResultFailed,
	}
	if len(got) != len(want) {
		t.Errorf("expected %d attributes, got %d", len(want), len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %s = %v, want %v", k, got[k], v)
		}
	}
}

func TestSpanAttributeBuilder_EmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithSession("").
		WithResource("", "").
		Build()

	if len(attrs) != 0 {
		t.Errorf("expected no attributes, got %d", len(attrs))
	}
}

func TestStartSpans(t *testing.T) {
	ctx, _ := newTestProvider(t)

	spanCtx, span := StartToolSpan(ctx, "mail_list")
	if spanCtx == nil || span == nil {
		t.Error("StartToolSpan returned nil")
	}
	span.End()

	spanCtx, span = StartMailSpan(ctx, "gmail", OperationList)
	if spanCtx == nil || span == nil {
		t.Error("StartMailSpan returned nil")
	}
	span.End()

	spanCtx, span = StartStepSpan(ctx, "extract")
	if spanCtx == nil || span == nil {
		t.Error("StartStepSpan returned nil")
	}
	span.End()
}

func TestSpanHelpers_Recorded(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartStepSpan(context.Background(), "extract")
	AddSpanEvent(span, "attachment", NewSpanAttributeBuilder().WithAttachment("txt", ExtractionResultSuccess).Build()...)
	SetSpanError(span, nil)
	SetSpanError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "pipeline.extract" {
		t.Errorf("span name = %q", got.Name())
	}
	if got.Status().Code != codes.Error || got.Status().Description != "boom" {
		t.Errorf("span status = %+v", got.Status())
	}
	var names []string
	for _, e := range got.Events() {
		names = append(names, e.Name)
	}
	if len(names) != 2 || names[0] != "attachment" || names[1] != "exception" {
		t.Errorf("span events = %v", names)
	}
}
