// Package telemetry holds the Prometheus collectors for the dashboard
// engine. Collectors are package-level and registered once via InitMetrics.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PollsTotal counts detection fetches by result ("ok" or "error").
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridwatch",
			Name:      "polls_total",
			Help:      "Total number of detection fetches issued",
		},
		[]string{"result"},
	)

	// StalePollsTotal counts fetch results discarded by the epoch guard.
	StalePollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridwatch",
			Name:      "stale_polls_total",
			Help:      "Total number of fetch results dropped after a mode switch",
		},
	)

	// AnomaliesTotal counts readings flagged as anomalous by the backend.
	AnomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridwatch",
			Name:      "anomalies_total",
			Help:      "Total number of anomalous readings observed",
		},
	)

	// ModeSwitchesTotal counts successful meter mode switches.
	ModeSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridwatch",
			Name:      "mode_switches_total",
			Help:      "Total number of successful mode switches",
		},
		[]string{"mode"},
	)

	// HistorySize tracks the current number of retained readings.
	HistorySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gridwatch",
			Name:      "history_size",
			Help:      "Number of readings currently held in the rolling history",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(PollsTotal)
		prometheus.DefaultRegisterer.Register(StalePollsTotal)
		prometheus.DefaultRegisterer.Register(AnomaliesTotal)
		prometheus.DefaultRegisterer.Register(ModeSwitchesTotal)
		prometheus.DefaultRegisterer.Register(HistorySize)
	})
}
