package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	contractCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "contract",
			Name:      "calls_total",
			Help:      "Total number of read-only contract calls by outcome.",
		},
		[]string{"function", "outcome"},
	)

	contractDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "contract",
			Name:      "call_duration_seconds",
			Help:      "Duration of read-only contract calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"function"},
	)

	fetchTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "fetch",
			Name:      "transitions_total",
			Help:      "Fetch state transitions by fetcher and target state.",
		},
		[]string{"fetcher", "state"},
	)

	fetchStale = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "fetch",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer request superseded them.",
		},
		[]string{"fetcher"},
	)

	sessionConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Wallet connection attempts by result.",
		},
		[]string{"result"},
	)

	catalogRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "catalog",
			Name:      "refresh_runs_total",
			Help:      "Scheduled catalog refresh runs.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		contractCalls,
		contractDuration,
		fetchTransitions,
		fetchStale,
		sessionConnects,
		catalogRefreshes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncInFlight and DecInFlight track requests currently being served.
func IncInFlight() { httpInFlight.Inc() }

func DecInFlight() { httpInFlight.Dec() }

// RecordContractCall records one read-only call. Outcome is "ok" or an error kind.
func RecordContractCall(function, outcome string, duration time.Duration) {
	if function == "" {
		function = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	contractCalls.WithLabelValues(function, outcome).Inc()
	contractDuration.WithLabelValues(function).Observe(duration.Seconds())
}

// RecordFetchTransition counts a fetcher entering state.
func RecordFetchTransition(fetcher, state string) {
	fetchTransitions.WithLabelValues(fetcher, state).Inc()
}

// RecordStaleResponse counts a response dropped by a fetcher.
func RecordStaleResponse(fetcher string) {
	fetchStale.WithLabelValues(fetcher).Inc()
}

// RecordSessionConnect counts a connect attempt; result is connected, cancelled or failed.
func RecordSessionConnect(result string) {
	sessionConnects.WithLabelValues(result).Inc()
}

// RecordCatalogRefresh records a scheduled catalog refresh.
func RecordCatalogRefresh(success bool) {
	catalogRefreshes.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// CanonicalPath collapses identifiers in known routes.
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "products":
		switch len(parts) {
		case 1:
			return "/products"
		case 2:
			return "/products/:id"
		default:
			return "/products/:id/" + parts[2]
		}
	case "profile":
		if len(parts) == 1 {
			return "/profile"
		}
		return "/profile/:address"
	case "session":
		if len(parts) == 1 {
			return "/session"
		}
		return "/session/" + parts[1]
	}
	return "/" + parts[0]
}
