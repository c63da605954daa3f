package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"verify-gate/internal/gate"
	"verify-gate/internal/service"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T) (*service.VerificationService, *fakeClock, *observer.ObservedLogs) {
	t.Helper()

	policy := gate.Policy{SecretCode: "A7B2C9D", SessionTimeout: time.Minute, MaxAttempts: 2}
	engine, err := gate.NewEngine(policy, gate.NewLedger(policy.SessionTimeout, 2, 100))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := service.NewVerificationService(engine, "https://example.com/landing", time.Second,
		zap.New(core), service.WithClock(clock.Now))
	return svc, clock, logs
}

func TestVerifyCountsAndLogsOutcomes(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	svc, _, logs := newService(t)

	event := svc.Verify(ctx, "1.1.1.1", "nope")
	require.Equal(gate.Rejected, event.Outcome)
	require.Equal("rejected", event.OutcomeName)
	require.Equal(1, event.AttemptsRemaining)

	svc.Verify(ctx, "1.1.1.1", "nope")
	event = svc.Verify(ctx, "1.1.1.1", "A7B2C9D")
	require.Equal(gate.Locked, event.Outcome)

	event = svc.Verify(ctx, "2.2.2.2", " a7b2c9d ")
	require.Equal(gate.Accepted, event.Outcome)
	require.NotEmpty(event.EventID.String())

	stats, err := svc.GetServiceStats(ctx)
	require.NoError(err)
	require.EqualValues(1, stats["accepted"])
	require.EqualValues(2, stats["rejected"])
	require.EqualValues(1, stats["locked"])
	require.Equal(1, stats["tracked_clients"])

	require.Equal(1, logs.FilterMessage("Verification locked out").Len())
	require.Equal(2, logs.FilterMessage("Verification rejected").Len())
	require.Equal(1, logs.FilterMessage("Verification accepted").Len())
}

func TestSweepUsesServiceClock(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	svc, clock, _ := newService(t)
	svc.Verify(ctx, "1.1.1.1", "nope")
	svc.Verify(ctx, "2.2.2.2", "nope")

	require.Zero(svc.Sweep())

	clock.Advance(time.Minute + time.Second)
	require.Equal(2, svc.Sweep())

	stats, err := svc.GetServiceStats(ctx)
	require.NoError(err)
	require.Equal(0, stats["tracked_clients"])
	require.EqualValues(2, stats["swept"])
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	svc, _, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.RunSweeper(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	svc, _, _ := newService(t)
	require.NoError(svc.HealthCheck(context.Background()))
	require.Equal("https://example.com/landing", svc.Destination())
	require.Equal(2, svc.Policy().MaxAttempts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(svc.HealthCheck(ctx), context.Canceled)
}
