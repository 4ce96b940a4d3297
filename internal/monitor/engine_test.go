package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridsentry/gridwatch/internal/detect"
)

// fakeBackend is a scriptable Backend for engine tests.
type fakeBackend struct {
	mu            sync.Mutex
	queue         []detect.Event
	detectErr     error
	generateErr   error
	detectCalls   int
	generateCalls []string

	// blockFirst, when non-nil, makes the first Detect call wait until the
	// channel is closed. Later calls proceed immediately. If blockedErr is
	// set, the blocked call fails with it once released.
	blockFirst chan struct{}
	blocked    bool
	blockedErr error

	// detected, when non-nil, receives one signal per Detect call.
	detected chan struct{}
}

func (f *fakeBackend) Generate(ctx context.Context, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls = append(f.generateCalls, mode)
	return f.generateErr
}

func (f *fakeBackend) Detect(ctx context.Context) (detect.Event, error) {
	f.mu.Lock()
	var wait chan struct{}
	if f.blockFirst != nil && !f.blocked {
		f.blocked = true
		wait = f.blockFirst
	}
	f.mu.Unlock()
	if wait != nil {
		<-wait
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectCalls++
	if f.detected != nil {
		select {
		case f.detected <- struct{}{}:
		default:
		}
	}
	if wait != nil && f.blockedErr != nil {
		return detect.Event{}, f.blockedErr
	}
	if f.detectErr != nil {
		return detect.Event{}, f.detectErr
	}
	if len(f.queue) == 0 {
		return detect.Event{Consumption: 1, Reason: "default"}, nil
	}
	e := f.queue[0]
	if len(f.queue) > 1 {
		f.queue = f.queue[1:]
	}
	return e, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detectCalls
}

func newTestEngine(b Backend, interval time.Duration) *Engine {
	return NewEngine(EngineConfig{
		Backend:         b,
		PollInterval:    interval,
		HistoryCapacity: 30,
	})
}

func TestSwitchMode_ClearsHistoryAndFetchesImmediately(t *testing.T) {
	fb := &fakeBackend{queue: []detect.Event{{ID: "fresh", Consumption: 7}}}
	e := newTestEngine(fb, time.Hour)
	defer e.Stop()

	// Seed some history from the prior mode.
	e.RefreshNow(context.Background())
	e.RefreshNow(context.Background())

	require.NoError(t, e.SwitchMode(context.Background(), ModeTheft))

	require.Equal(t, ModeTheft, e.CurrentMode())
	require.True(t, e.Running())
	require.Equal(t, []string{"theft"}, fb.generateCalls)

	// Exactly the one synchronous post-switch fetch remains.
	events := e.Events()
	require.Len(t, events, 1)
}

func TestSwitchMode_FailureLeavesStateAndDropsConnection(t *testing.T) {
	fb := &fakeBackend{queue: []detect.Event{{Consumption: 5}}}
	e := newTestEngine(fb, time.Hour)
	defer e.Stop()

	e.RefreshNow(context.Background())
	require.True(t, e.Connected())

	fb.generateErr = errors.New("connection refused")
	err := e.SwitchMode(context.Background(), ModeTheft)
	require.Error(t, err)
	require.Contains(t, err.Error(), "theft")

	require.Equal(t, ModeNormal, e.CurrentMode())
	require.False(t, e.Connected())
	require.Len(t, e.Events(), 1, "failed switch must not clear history")
}

func TestStop_IsIdempotent(t *testing.T) {
	e := newTestEngine(&fakeBackend{}, time.Hour)
	e.Start()
	require.True(t, e.Running())

	e.Stop()
	e.Stop()
	require.False(t, e.Running())
}

func TestStart_IdempotentRestartKeepsOneTimer(t *testing.T) {
	const interval = 25 * time.Millisecond
	fb := &fakeBackend{detected: make(chan struct{}, 64)}
	e := newTestEngine(fb, interval)
	defer e.Stop()

	start := time.Now()
	e.Start()
	e.Start()
	e.Start()

	// A single ticker cannot fire its i-th tick before i*interval, so ten
	// fetches take at least ten intervals. Leftover timers from the earlier
	// Starts would triple the rate and finish far sooner. Counting arrivals
	// over the channel keeps the test independent of scheduler load: delays
	// only stretch the elapsed time, never shrink it.
	deadline := time.After(10 * time.Second)
	for i := 0; i < 10; i++ {
		select {
		case <-fb.detected:
		case <-deadline:
			t.Fatalf("schedule stalled: only %d fetches arrived", i)
		}
	}
	elapsed := time.Since(start)
	e.Stop()

	require.GreaterOrEqual(t, elapsed, 10*interval, "fetches arrived faster than one timer can fire")
}

func TestFetchFailure_KeepsScheduleAndDropsConnection(t *testing.T) {
	fb := &fakeBackend{detectErr: errors.New("dial tcp: connection refused")}
	e := newTestEngine(fb, 20*time.Millisecond)
	defer e.Stop()

	e.Start()
	time.Sleep(110 * time.Millisecond)
	e.Stop()

	require.False(t, e.Connected())
	require.Empty(t, e.Events())
	require.GreaterOrEqual(t, fb.calls(), 2, "failures must not stop the schedule")
}

func TestEpochGuard_DropsStaleResponseAfterModeSwitch(t *testing.T) {
	fb := &fakeBackend{
		queue:      []detect.Event{{Consumption: 111}, {Consumption: 7}},
		blockFirst: make(chan struct{}),
	}
	e := newTestEngine(fb, time.Hour)
	defer e.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.RefreshNow(context.Background()) // blocks inside Detect
	}()

	// Wait until the stale fetch is actually in flight.
	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.blocked
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.SwitchMode(context.Background(), ModeTheft))

	// The synchronous post-switch fetch is the only event in the new history.
	require.Len(t, e.Events(), 1)

	// Release the stale response; the epoch guard must discard it instead of
	// appending it to the new mode's history.
	close(fb.blockFirst)
	wg.Wait()

	require.Len(t, e.Events(), 1, "stale event leaked into new history")
}

func TestEpochGuard_DropsStaleFailureAfterModeSwitch(t *testing.T) {
	fb := &fakeBackend{
		queue:      []detect.Event{{Consumption: 7}},
		blockFirst: make(chan struct{}),
		blockedErr: errors.New("read tcp: connection reset"),
	}
	e := newTestEngine(fb, time.Hour)
	defer e.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.RefreshNow(context.Background()) // blocks inside Detect, will fail
	}()

	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.blocked
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.SwitchMode(context.Background(), ModeTheft))
	require.True(t, e.Connected())

	var mu sync.Mutex
	var got []Update
	e.Subscribe(func(u Update) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})

	// Release the failure from the previous mode. It must be discarded like
	// a stale success: no connection flap, no update broadcast.
	close(fb.blockFirst)
	wg.Wait()

	require.True(t, e.Connected(), "stale failure flipped the connection flag")
	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, got, "stale failure broadcast an update")
}

func TestEndToEnd_TwoPolls(t *testing.T) {
	fb := &fakeBackend{queue: []detect.Event{
		{Consumption: 12.5, RiskScore: 20, Anomaly: false, Reason: "ok"},
		{Consumption: 45, RiskScore: 80, Anomaly: true, Reason: "spike"},
	}}
	e := newTestEngine(fb, time.Hour)
	defer e.Stop()

	e.RefreshNow(context.Background())
	e.RefreshNow(context.Background())

	stats := e.Stats()
	require.Equal(t, 2, stats.TotalReadings)
	require.Equal(t, 1, stats.AnomaliesDetected)
	require.Equal(t, 28.75, stats.AverageConsumption)

	snap := e.Snapshot()
	require.NotNil(t, snap.Status)
	require.Equal(t, TierHigh, snap.Status.Tier)
	require.Equal(t, "Suspicious", snap.Status.State)
	require.Equal(t, "spike", snap.Status.Reason)
	require.True(t, snap.Connected)
}

func TestListeners_ReceiveEveryAppliedUpdate(t *testing.T) {
	fb := &fakeBackend{queue: []detect.Event{{Consumption: 2}}}
	e := newTestEngine(fb, time.Hour)
	defer e.Stop()

	var mu sync.Mutex
	var got []Update
	e.Subscribe(func(u Update) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})

	e.RefreshNow(context.Background())
	e.RefreshNow(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	require.Len(t, got[1].Events, 2)
	require.True(t, got[1].Connected)
}
