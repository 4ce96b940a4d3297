package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gridsentry/gridwatch/internal/detect"
)

// StatsSnapshot holds the summary metrics displayed by the dashboard.
// Consumption figures are rounded to 2 decimal places.
type StatsSnapshot struct {
	TotalReadings      int     `json:"total_readings"`
	AverageConsumption float64 `json:"average_consumption"`
	PeakConsumption    float64 `json:"peak_consumption"`
	LowestConsumption  float64 `json:"lowest_consumption"`
	AnomaliesDetected  int     `json:"anomalies_detected"`
	UptimeSeconds      int64   `json:"uptime_seconds"`
}

// StatsTracker recomputes summary statistics from full history snapshots and
// maintains the session uptime counter on its own one-second cadence.
type StatsTracker struct {
	mu   sync.Mutex
	snap StatsSnapshot
}

func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Recompute replaces the derived metrics from the given history snapshot.
// An empty history is a deliberate no-op: the previous figures stay frozen
// rather than resetting to zero, so the summary keeps showing the last known
// values across a mode switch until fresh readings arrive.
func (t *StatsTracker) Recompute(events []detect.Event) {
	if len(events) == 0 {
		return
	}

	consumption := make([]float64, len(events))
	anomalies := 0
	for i, e := range events {
		consumption[i] = e.Consumption
		if e.Anomaly {
			anomalies++
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.TotalReadings = len(events)
	t.snap.AverageConsumption = round2(stat.Mean(consumption, nil))
	t.snap.PeakConsumption = round2(floats.Max(consumption))
	t.snap.LowestConsumption = round2(floats.Min(consumption))
	t.snap.AnomaliesDetected = anomalies
}

// Snapshot returns a copy of the current statistics.
func (t *StatsTracker) Snapshot() StatsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// RunUptime drives the uptime counter until the context is cancelled. The
// counter is independent of history and only ever increases.
func (t *StatsTracker) RunUptime(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *StatsTracker) tick() {
	t.mu.Lock()
	t.snap.UptimeSeconds++
	t.mu.Unlock()
}

// round2 rounds to 2 decimal places, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
