package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of messages broadcast to rooms",
	})
	RoomsReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rooms_reaped_total",
		Help: "Total number of idle rooms evicted by the reaper",
	})
	UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_uploads_total",
		Help: "Total number of accepted file uploads",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, MessagesTotal, RoomsReaped, UploadsTotal, HTTPRequestsTotal)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// routeLabel collapses request paths onto the fixed route set so the
// request counter's cardinality stays bounded no matter what clients ask
// for.
func routeLabel(path string) string {
	switch {
	case path == "/" || path == "/health" || path == "/metrics" || path == "/ws" || path == "/uploads":
		return path
	case strings.HasPrefix(path, "/uploads/"):
		return "/uploads/:file"
	case strings.HasPrefix(path, "/r/"):
		return "/r/:room"
	default:
		return "other"
	}
}

// Middleware records request counts and logs each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		HTTPRequestsTotal.With(prometheus.Labels{
			"method": r.Method,
			"path":   routeLabel(r.URL.Path),
			"status": strconv.Itoa(rec.status),
		}).Inc()
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
