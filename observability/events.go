package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	events    *prometheus.CounterVec
	transfers *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking published lending events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakelend",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakelend",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of stable asset transfers segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(eventRegistry.events, eventRegistry.transfers)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

// RecordTransfer increments the transfer counter for the supplied reason.
func (m *eventMetrics) RecordTransfer(reason string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(reason)
	if normalized == "" {
		normalized = "unspecified"
	}
	m.transfers.WithLabelValues(normalized).Inc()
}
