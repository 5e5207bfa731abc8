package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Trace-ID"

type traceKey struct{}

// NewTraceID returns a fresh trace ID.
func NewTraceID() string { return uuid.NewString() }

// WithTraceID stores id in ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace ID stored in ctx, if any.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// TracingMiddleware gives every request a trace ID, taken from the caller's
// header or freshly minted, and echoes it in the response. It wraps the whole
// chain so limiter rejections and preflights carry one too.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withTrace(w, r))
	})
}

// withTrace returns r carrying a trace ID. A request that already has one is
// returned unchanged.
func withTrace(w http.ResponseWriter, r *http.Request) *http.Request {
	if TraceID(r.Context()) != "" {
		return r
	}
	traceID := r.Header.Get(TraceHeader)
	if traceID == "" {
		traceID = NewTraceID()
	}
	w.Header().Set(TraceHeader, traceID)
	return r.WithContext(WithTraceID(r.Context(), traceID))
}
