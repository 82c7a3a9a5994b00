package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the realtime core and the HTTP surface
var (
	ConnectedChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_connected_channels",
			Help: "Number of authenticated realtime channels",
		},
	)

	ActiveSessions = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "courier_active_sessions",
			Help: "Number of sessions held by the session registry",
		},
		func() float64 { return float64(sessionCount()) },
	)

	EventsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_events_sent_total",
			Help: "Realtime frames enqueued to channels, by event type",
		},
		[]string{"type"},
	)

	PushFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_push_fallbacks_total",
			Help: "Push deliveries attempted because no channel was live, by outcome",
		},
		[]string{"outcome"},
	)

	StaleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_stale_transitions_total",
			Help: "Lifecycle transitions rejected because the stored state moved on",
		},
		[]string{"action"},
	)

	IdempotentReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_idempotent_replays_total",
			Help: "Order creations answered from a previously resolved idempotency key",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

var sessionCount = func() int { return 0 }

// TrackSessions points the active sessions gauge at a live counter
func TrackSessions(count func() int) {
	sessionCount = count
}

// Register registers all collectors with reg
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ConnectedChannels,
		ActiveSessions,
		EventsSentTotal,
		PushFallbacksTotal,
		StaleTransitionsTotal,
		IdempotentReplaysTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Instrument records request count and latency labelled by chi route pattern
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
