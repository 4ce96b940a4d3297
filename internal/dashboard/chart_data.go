// Package dashboard is the local HTTP presentation surface for the engine:
// JSON endpoints, the live dual-axis chart, CSV and PNG exports, WebSocket
// push, and Prometheus metrics. Chart data preparation is kept separate from
// rendering for testability.
package dashboard

import (
	"github.com/gridsentry/gridwatch/internal/detect"
)

// ChartSeries holds the prepared dual-axis series for the consumption chart:
// one shared time axis, consumption on the left axis, risk on the right.
type ChartSeries struct {
	Labels      []string  `json:"labels"`
	Consumption []float64 `json:"consumption"`
	Risk        []float64 `json:"risk"`
	Anomalies   int       `json:"anomalies"`
}

// PrepareChartSeries transforms the ordered event history into chart-ready
// parallel series, oldest first.
func PrepareChartSeries(events []detect.Event) *ChartSeries {
	s := &ChartSeries{
		Labels:      make([]string, len(events)),
		Consumption: make([]float64, len(events)),
		Risk:        make([]float64, len(events)),
	}
	for i, e := range events {
		s.Labels[i] = e.Timestamp
		s.Consumption[i] = e.Consumption
		s.Risk[i] = e.RiskScore
		if e.Anomaly {
			s.Anomalies++
		}
	}
	return s
}
