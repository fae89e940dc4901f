package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record API
// route activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakelend",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and route.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakelend",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakelend",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakelend",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LendingMetrics tracks lending transitions and protocol aggregates.
type LendingMetrics struct {
	transitions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	totalStaked prometheus.Gauge
	totalLoans  prometheus.Gauge
	seized      prometheus.Counter
}

// Lending returns the singleton lending metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakelend",
				Subsystem: "lending",
				Name:      "transitions_total",
				Help:      "Count of lending transitions segmented by operation and result code.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakelend",
				Subsystem: "lending",
				Name:      "transition_duration_seconds",
				Help:      "Latency distribution for lending transitions including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakelend",
				Subsystem: "lending",
				Name:      "total_staked",
				Help:      "Aggregate stake recorded in the protocol parameters.",
			}),
			totalLoans: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakelend",
				Subsystem: "lending",
				Name:      "total_loans",
				Help:      "Number of loans originated.",
			}),
			seized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakelend",
				Subsystem: "lending",
				Name:      "liquidated_collateral_total",
				Help:      "Stable asset units moved to liquidators.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.transitions,
			lendingRegistry.latency,
			lendingRegistry.totalStaked,
			lendingRegistry.totalLoans,
			lendingRegistry.seized,
		)
	})
	return lendingRegistry
}

// ObserveTransition records a transition outcome. An empty outcome is
// recorded as "ok".
func (m *LendingMetrics) ObserveTransition(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetTotals publishes the protocol aggregates.
func (m *LendingMetrics) SetTotals(totalStaked, totalLoans uint64) {
	if m == nil {
		return
	}
	m.totalStaked.Set(float64(totalStaked))
	m.totalLoans.Set(float64(totalLoans))
}

// RecordSeized adds liquidated collateral.
func (m *LendingMetrics) RecordSeized(amount uint64) {
	if m == nil {
		return
	}
	m.seized.Add(float64(amount))
}
