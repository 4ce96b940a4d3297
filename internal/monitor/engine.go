// Package monitor implements the live polling and history-aggregation engine
// behind the dashboard: mode state, the periodic detection fetch, bounded
// history retention, summary statistics, and risk classification.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gridsentry/gridwatch/internal/detect"
	"github.com/gridsentry/gridwatch/internal/telemetry"
)

// DefaultPollInterval is the cadence of the periodic detection fetch.
const DefaultPollInterval = 2 * time.Second

// Mode selects the simulated meter behaviour on the backend.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeTheft  Mode = "theft"
)

// ParseMode validates a mode name from an external caller.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNormal, ModeTheft:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeNormal, ModeTheft)
	}
}

// Backend is the slice of the detection service the engine depends on.
type Backend interface {
	Generate(ctx context.Context, mode string) error
	Detect(ctx context.Context) (detect.Event, error)
}

// Status is the classified view of the latest reading.
type Status struct {
	Tier   Tier   `json:"tier"`
	State  string `json:"state"`
	Reason string `json:"reason"`
}

// Update is the full outward-facing state handed to presentation consumers
// after every fetch: the chart-ready event sequence, the latest classified
// status (nil until the first reading lands), the summary statistics, and
// the connection flag.
type Update struct {
	Mode      Mode           `json:"mode"`
	Connected bool           `json:"connected"`
	Status    *Status        `json:"status,omitempty"`
	Stats     StatsSnapshot  `json:"stats"`
	Events    []detect.Event `json:"events"`
}

// EngineConfig carries construction options for the engine.
type EngineConfig struct {
	Backend         Backend
	PollInterval    time.Duration // defaults to DefaultPollInterval
	HistoryCapacity int           // defaults to DefaultHistoryCapacity
	Stats           *StatsTracker // defaults to a fresh tracker
}

// Engine owns all mutable dashboard state. Shared state is only touched
// under the mutex because timer callbacks, in-flight fetch completions, and
// HTTP handlers all interleave freely.
type Engine struct {
	backend  Backend
	interval time.Duration
	stats    *StatsTracker

	mu        sync.Mutex
	history   *History
	mode      Mode
	connected bool
	epoch     uint64 // bumped on every mode switch; stale fetches are dropped
	status    *Status
	cancel    context.CancelFunc // poll loop handle; nil when idle
	listeners []func(Update)
}

func NewEngine(config EngineConfig) *Engine {
	interval := config.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	stats := config.Stats
	if stats == nil {
		stats = NewStatsTracker()
	}
	return &Engine{
		backend:  config.Backend,
		interval: interval,
		stats:    stats,
		history:  NewHistory(config.HistoryCapacity),
		mode:     ModeNormal,
	}
}

// Subscribe registers a listener invoked synchronously after every applied
// update. Must be called before the engine starts polling.
func (e *Engine) Subscribe(fn func(Update)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// SwitchMode asks the backend to regenerate meter data in the given mode.
// On success it bumps the epoch, clears the history, restarts the poll
// schedule, and performs one synchronous fetch before returning. On failure
// the prior mode and history are left untouched; only the connection flag
// drops.
func (e *Engine) SwitchMode(ctx context.Context, mode Mode) error {
	if err := e.backend.Generate(ctx, string(mode)); err != nil {
		e.mu.Lock()
		e.connected = false
		upd := e.updateLocked()
		e.mu.Unlock()
		e.notify(upd)
		return fmt.Errorf("mode switch to %q failed: %w", mode, err)
	}

	e.mu.Lock()
	e.epoch++
	e.mode = mode
	e.history.Clear()
	e.connected = true
	e.mu.Unlock()

	telemetry.ModeSwitchesTotal.WithLabelValues(string(mode)).Inc()
	telemetry.HistorySize.Set(0)
	log.Printf("switched meter mode to %q", mode)

	e.Start()
	e.fetchOnce(ctx)
	return nil
}

// Start begins the periodic fetch schedule. If a schedule is already
// running it is cancelled first, so there is never more than one active
// timer.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	go e.poll(ctx)
}

// Stop cancels the periodic schedule. Safe to call when already stopped.
// In-flight fetches are not aborted; the epoch guard handles any that land
// after a subsequent mode switch.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Running reports whether the periodic schedule is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// RefreshNow performs exactly one fetch outside the periodic cadence. The
// timer phase and Running state are untouched.
func (e *Engine) RefreshNow(ctx context.Context) {
	e.fetchOnce(ctx)
}

// SetConnected records an externally observed reachability result, e.g. the
// startup probe.
func (e *Engine) SetConnected(ok bool) {
	e.mu.Lock()
	e.connected = ok
	e.mu.Unlock()
}

func (e *Engine) poll(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Each fetch runs on its own goroutine so a slow backend never
			// delays the next tick. Fetch failures do not stop the schedule.
			go e.fetchOnce(context.Background())
		}
	}
}

// fetchOnce issues a single detection fetch and applies the result. The
// fetch is tagged with the epoch at issue time; if a mode switch happens
// while it is in flight, the late result is discarded instead of leaking
// into the new history.
func (e *Engine) fetchOnce(ctx context.Context) {
	e.mu.Lock()
	issued := e.epoch
	e.mu.Unlock()

	ev, err := e.backend.Detect(ctx)

	e.mu.Lock()
	if issued != e.epoch {
		// A result or failure from before the mode switch says nothing
		// about the current mode; discard it either way.
		current := e.epoch
		e.mu.Unlock()
		telemetry.StalePollsTotal.Inc()
		log.Printf("dropping stale detection result (epoch %d, now %d)", issued, current)
		return
	}
	if err != nil {
		e.connected = false
		upd := e.updateLocked()
		e.mu.Unlock()
		telemetry.PollsTotal.WithLabelValues("error").Inc()
		log.Printf("detection fetch failed: %v", err)
		e.notify(upd)
		return
	}

	e.connected = true
	e.history.Append(ev)
	e.stats.Recompute(e.history.Snapshot())
	e.status = &Status{
		Tier:   Classify(ev.RiskScore),
		State:  DeriveState(ev.Anomaly),
		Reason: ev.Reason,
	}
	historyLen := e.history.Len()
	upd := e.updateLocked()
	e.mu.Unlock()

	telemetry.PollsTotal.WithLabelValues("ok").Inc()
	telemetry.HistorySize.Set(float64(historyLen))
	if ev.Anomaly {
		telemetry.AnomaliesTotal.Inc()
	}
	e.notify(upd)
}

// updateLocked builds an Update from current state. Caller holds e.mu.
func (e *Engine) updateLocked() Update {
	var status *Status
	if e.status != nil {
		s := *e.status
		status = &s
	}
	return Update{
		Mode:      e.mode,
		Connected: e.connected,
		Status:    status,
		Stats:     e.stats.Snapshot(),
		Events:    e.history.Snapshot(),
	}
}

func (e *Engine) notify(upd Update) {
	e.mu.Lock()
	listeners := make([]func(Update), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(upd)
	}
}

// Snapshot returns the current outward-facing state without fetching.
func (e *Engine) Snapshot() Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLocked()
}

// Events returns the ordered history, oldest first.
func (e *Engine) Events() []detect.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Snapshot()
}

// Stats returns the current summary statistics.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// CurrentMode returns the active meter mode.
func (e *Engine) CurrentMode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Connected returns the last-known backend reachability.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}
