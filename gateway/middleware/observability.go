package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakelend/observability"
)

type ObservabilityConfig struct {
	ServiceName string
	LogRequests bool
	Enabled     bool
}

// Observability traces requests with otelhttp, records them in the shared
// API metrics and optionally logs one line per request.
type Observability struct {
	cfg    ObservabilityConfig
	logger *slog.Logger
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lendingd"
	}
	return &Observability{cfg: cfg, logger: logger.With("component", "http")}
}

// Middleware instruments handlers serving route.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !o.cfg.Enabled {
			return next
		}
		instrumented := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			observability.ModuleMetrics().Observe(o.cfg.ServiceName, route, recorder.status, duration)
			if o.cfg.LogRequests {
				o.logger.Info("request served",
					"method", r.Method,
					"route", route,
					"status", recorder.status,
					"requestid", RequestID(r.Context()),
					"duration_ms", float64(duration.Microseconds())/1000)
			}
		})
		return otelhttp.NewHandler(instrumented, route)
	}
}

// MetricsHandler exposes the process-wide prometheus registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack forwards to the wrapped writer so websocket upgrades work behind
// the middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
