package telemetry

import (
	"context"
	"net/http"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// traceparentRe validates the W3C Trace Context traceparent header format:
// version-trace_id-parent_id-trace_flags (e.g., 00-<32 hex>-<16 hex>-<2 hex>).
var traceparentRe = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// TraceContext holds distributed trace headers.
type TraceContext struct {
	Traceparent string // W3C traceparent header
	Tracestate  string // W3C tracestate header
	XRayTraceID string // AWS X-Ray X-Amzn-Trace-Id header
}

// IsEmpty returns true when no trace data is present.
func (tc TraceContext) IsEmpty() bool {
	return tc.Traceparent == "" && tc.Tracestate == "" && tc.XRayTraceID == ""
}

// FromHeaders reads trace headers. Invalid traceparent values are discarded.
func FromHeaders(h http.Header) TraceContext {
	tc := TraceContext{
		Tracestate:  h.Get("tracestate"),
		XRayTraceID: h.Get("X-Amzn-Trace-Id"),
	}
	if tp := h.Get("traceparent"); traceparentRe.MatchString(tp) {
		tc.Traceparent = tp
	}
	return tc
}

// InjectHeaders writes the trace context of ctx onto h using the global
// propagator. It returns the headers that ended up set.
//
// The relay uses this on its websocket handshake, where otelhttp's transport
// does not apply.
func InjectHeaders(ctx context.Context, h http.Header) TraceContext {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
	return FromHeaders(h)
}
