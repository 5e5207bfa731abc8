package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/marketplace/internal/app/metrics"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(TraceID(r.Context())))
}

func TestLoggingMiddleware_TraceID(t *testing.T) {
	var buf bytes.Buffer
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logger.NewWithWriter(&buf)))
	router.HandleFunc("/products", okHandler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	traceID := rec.Header().Get(TraceHeader)
	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rec.Body.String())
	assert.Contains(t, buf.String(), traceID)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set(TraceHeader, "caller-trace")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "caller-trace", rec.Header().Get(TraceHeader))
}

func TestLoggingMiddleware_ReusesOuterTrace(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf)
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(log))
	router.HandleFunc("/products", okHandler)
	rl := NewRateLimiter(0.001, 1, log)
	h := TracingMiddleware(rl.Handler(router))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	require.Equal(t, http.StatusOK, rec.Code)
	traceID := rec.Header().Get(TraceHeader)
	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rec.Body.String())
	assert.Contains(t, buf.String(), `"trace_id":"`+traceID+`"`)

	buf.Reset()
	rec = send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	traceID = rec.Header().Get(TraceHeader)
	require.NotEmpty(t, traceID)
	assert.Contains(t, buf.String(), `"trace_id":"`+traceID+`"`)
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware())
	router.HandleFunc("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/17", nil))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `marketplace_http_requests_total{method="GET",path="/products/{id}",status="404"}`)
	assert.NotContains(t, body, `path="/products/17"`)
}

func TestTracingMiddleware(t *testing.T) {
	h := TracingMiddleware(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Body.String())
	assert.Equal(t, rec.Header().Get(TraceHeader), rec.Body.String())

	ctx := WithTraceID(context.Background(), "kept")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.Equal(t, "kept", rec.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://shop.example", ".example.org"}).Handler(http.HandlerFunc(okHandler))

	cases := []struct {
		origin string
		allow  bool
	}{
		{"https://shop.example", true},
		{"https://app.example.org", true},
		{"https://evil.example", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.Header.Set("Origin", tc.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if tc.allow {
			assert.Equal(t, tc.origin, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/session/connect", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logger.NewNop())
	h := rl.Handler(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per client")

	assert.Equal(t, 2, rl.size())
	rl.idleTTL = -time.Second
	rl.Cleanup()
	assert.Zero(t, rl.size())
}
