// Package httputil centralizes HTTP client construction so the LLM provider,
// the backend REST client and the mesh uploader share timeout defaults and
// tracing instrumentation.
package httputil

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Standard timeout defaults.
const (
	// DefaultProviderTimeout bounds a single LLM completion call, streaming
	// included. Batches of ten frames can take a while to describe.
	DefaultProviderTimeout = 60 * time.Second

	// DefaultBackendTimeout bounds REST calls to the report/chat backend.
	DefaultBackendTimeout = 30 * time.Second

	// DefaultUploadTimeout bounds mesh inference uploads.
	DefaultUploadTimeout = 15 * time.Second
)

// NewHTTPClient returns an *http.Client configured with the given timeout.
// A zero timeout means no client-side deadline, which streaming callers use
// when they enforce their own per-request context deadline.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewTracedHTTPClient returns a client whose transport emits OpenTelemetry
// client spans for every request. The operation name is used as the span
// name prefix.
func NewTracedHTTPClient(timeout time.Duration, operation string) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return operation + " " + r.Method + " " + r.URL.Path
			}),
		),
	}
}
