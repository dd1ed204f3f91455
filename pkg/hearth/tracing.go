package hearth

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig defines the configuration options for the OpenTelemetry tracing hook.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "hearth")
	TracerName string
	// SkipPaths lists paths to skip tracing (e.g., health checks)
	SkipPaths []string
	// Propagator is the propagation format (default: TraceContext)
	Propagator propagation.TextMapPropagator
	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
}

// DefaultTracingConfig returns a TracingConfig with sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName: "hearth",
		SkipPaths:  []string{"/health", "/metrics"},
		Propagator: propagation.TraceContext{},
	}
}

// Tracing returns a hook that wraps each request in a server span.
func Tracing() Hook {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns a tracing hook with custom configuration. The
// span is stored in the request context so handlers can start children.
func TracingWithConfig(config TracingConfig) Hook {
	if config.TracerName == "" {
		config.TracerName = "hearth"
	}
	if config.Propagator == nil {
		config.Propagator = propagation.TraceContext{}
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	tracer := config.TracerProvider.Tracer(config.TracerName)

	return HookFuncs{
		BeforeFunc: func(req *Request, _ *Response) (Action, error) {
			if skipMap[req.Path()] {
				return Continue, nil
			}
			parent := config.Propagator.Extract(req.Context(), headerCarrier{req: req})
			method := req.Method().String()
			ctx, span := tracer.Start(parent, method+" "+req.Path(),
				trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				attribute.String("http.method", method),
				attribute.String("http.target", req.Path()),
				attribute.String("http.flavor", req.Version()),
				attribute.Int64("http.request_content_length", int64(req.ContentLength())),
			)
			if host, ok := req.LookupHeader("Host"); ok {
				span.SetAttributes(attribute.String("http.host", host))
			}
			req.SetContext(ctx)
			return Continue, nil
		},
		AfterFunc: func(req *Request, resp *Response) error {
			if skipMap[req.Path()] {
				return nil
			}
			span := trace.SpanFromContext(req.Context())
			if id := RequestIDFrom(req); id != "" {
				span.SetAttributes(attribute.String("http.request_id", id))
			}
			span.SetAttributes(attribute.Int("http.status_code", resp.Status()))
			if resp.Status() >= 500 {
				span.SetStatus(codes.Error, string(resp.Body()))
			} else if resp.Status() >= 400 {
				span.SetStatus(codes.Error, "HTTP error")
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
			return nil
		},
	}
}

// headerCarrier adapts request headers to propagation.TextMapCarrier.
type headerCarrier struct {
	req *Request
}

func (hc headerCarrier) Get(key string) string {
	v, _ := hc.req.LookupHeader(key)
	return v
}

func (hc headerCarrier) Set(key, value string) {
	hc.req.SetHeader(key, value)
}

func (hc headerCarrier) Keys() []string {
	headers := hc.req.Headers()
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	return keys
}
