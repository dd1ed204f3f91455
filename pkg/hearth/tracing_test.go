package hearth

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func tracedServer(t *testing.T, config TracingConfig) (*Server, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	config.TracerProvider = tp
	s := NewWithDefaults()
	s.Use(TracingWithConfig(config))
	return s, rec
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_RecordsServerSpan(t *testing.T) {
	s, rec := tracedServer(t, DefaultTracingConfig())
	var inHandler trace.SpanContext
	s.Router().GET("/items/:id", func(req *Request, _ *Response) {
		inHandler = trace.SpanContextFromContext(req.Context())
	})

	serve(s, MethodGet, "/items/3")

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /items/3" {
		t.Errorf("name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("kind = %v", span.SpanKind())
	}
	if v, ok := attr(span, "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("http.status_code = %v", v)
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v", span.Status())
	}
	if inHandler.SpanID() != span.SpanContext().SpanID() {
		t.Error("handler context does not carry the request span")
	}
}

func TestTracing_ExtractsParent(t *testing.T) {
	s, rec := tracedServer(t, DefaultTracingConfig())
	s.Router().GET("/", serveString("ok"))

	req := NewRequest(MethodGet, "/")
	req.SetHeader("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	s.ServeH1(req, NewResponse())

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if got := spans[0].Parent().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("parent trace id = %s", got)
	}
	if got := spans[0].Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span id = %s", got)
	}
}

func TestTracing_ErrorStatus(t *testing.T) {
	s, rec := tracedServer(t, DefaultTracingConfig())
	s.Router().GET("/fail", func(_ *Request, _ *Response) error {
		return errors.New("broken")
	})

	serve(s, MethodGet, "/fail")
	serve(s, MethodGet, "/missing")

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	for _, span := range spans {
		if span.Status().Code != codes.Error {
			t.Errorf("%s status = %v, want error", span.Name(), span.Status())
		}
	}
	if spans[0].Status().Description != "broken" {
		t.Errorf("description = %q", spans[0].Status().Description)
	}
}

func TestTracing_SkipPaths(t *testing.T) {
	s, rec := tracedServer(t, TracingConfig{SkipPaths: []string{"/health"}})
	s.Router().GET("/health", serveString("ok"))

	serve(s, MethodGet, "/health")

	if n := len(rec.Ended()); n != 0 {
		t.Errorf("ended spans = %d, want 0", n)
	}
}

func TestTracingConfig_Defaults(t *testing.T) {
	config := DefaultTracingConfig()
	if config.TracerName != "hearth" {
		t.Errorf("TracerName = %q", config.TracerName)
	}
	if len(config.SkipPaths) == 0 {
		t.Error("expected default skip paths")
	}
	if config.Propagator == nil {
		t.Error("expected default propagator")
	}
}
