package gate_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verify-gate/internal/gate"
)

const (
	secret      = "A7B2C9D"
	maxAttempts = 5
	timeout     = 15 * time.Minute
)

func newEngine(t *testing.T) *gate.Engine {
	t.Helper()
	engine, err := gate.NewEngine(gate.Policy{
		SecretCode:     secret,
		SessionTimeout: timeout,
		MaxAttempts:    maxAttempts,
	}, gate.NewLedger(timeout, 4, 0))
	require.NoError(t, err)
	return engine
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		policy gate.Policy
	}{
		{"empty secret", gate.Policy{SecretCode: "  ", SessionTimeout: timeout, MaxAttempts: 5}},
		{"zero attempts", gate.Policy{SecretCode: secret, SessionTimeout: timeout, MaxAttempts: 0}},
		{"negative attempts", gate.Policy{SecretCode: secret, SessionTimeout: timeout, MaxAttempts: -1}},
		{"zero timeout", gate.Policy{SecretCode: secret, SessionTimeout: 0, MaxAttempts: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := gate.NewEngine(tc.policy, gate.NewLedger(tc.policy.SessionTimeout, 1, 0))
			require.ErrorIs(t, err, gate.ErrInvalidPolicy)
			require.Nil(t, engine)
		})
	}
}

func TestNewEngineRejectsMismatchedLedger(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	policy := gate.Policy{SecretCode: secret, SessionTimeout: timeout, MaxAttempts: 5}

	_, err := gate.NewEngine(policy, nil)
	require.ErrorIs(err, gate.ErrInvalidPolicy)

	_, err = gate.NewEngine(policy, gate.NewLedger(time.Minute, 1, 0))
	require.ErrorIs(err, gate.ErrInvalidPolicy)
}

func TestLockoutBoundary(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	now := epoch

	for i := 1; i <= maxAttempts; i++ {
		d := engine.Decide("client", fmt.Sprintf("WRONG%02d", i), now)
		require.Equal(gate.Rejected, d.Outcome)
		require.Equal(maxAttempts-i, d.AttemptsRemaining)
		now = now.Add(time.Second)
	}

	last := engine.Ledger().Get("client").LastAttemptAt
	d := engine.Decide("client", secret, now)
	require.Equal(gate.Locked, d.Outcome)
	require.Equal(last.Add(timeout), d.RetryAfter)

	// a locked call consumes nothing
	require.Equal(maxAttempts, engine.Ledger().Get("client").Attempts)
	require.Equal(last, engine.Ledger().Get("client").LastAttemptAt)
}

func TestResetOnTimeout(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	for i := 0; i < maxAttempts; i++ {
		engine.Decide("client", "nope", epoch)
	}
	require.Equal(gate.Locked, engine.Decide("client", "nope", epoch.Add(timeout)).Outcome)

	later := epoch.Add(timeout + time.Millisecond)
	d := engine.Decide("client", "nope", later)
	require.Equal(gate.Rejected, d.Outcome)
	require.Equal(maxAttempts-1, d.AttemptsRemaining)
}

func TestResetOnTimeoutThenAccept(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	for i := 0; i < maxAttempts; i++ {
		engine.Decide("client", "nope", epoch)
	}
	d := engine.Decide("client", secret, epoch.Add(timeout+time.Millisecond))
	require.Equal(gate.Accepted, d.Outcome)
}

func TestSuccessClearsState(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	for i := 0; i < maxAttempts-1; i++ {
		require.Equal(gate.Rejected, engine.Decide("client", "nope", epoch).Outcome)
	}

	require.Equal(gate.Accepted, engine.Decide("client", secret, epoch).Outcome)
	require.Zero(engine.Ledger().Len())

	d := engine.Decide("client", "nope", epoch)
	require.Equal(gate.Rejected, d.Outcome)
	require.Equal(maxAttempts-1, d.AttemptsRemaining)
}

func TestCaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"a7b2c9d", "  A7b2C9d\t", "\na7B2c9D \n"} {
		engine := newEngine(t)
		d := engine.Decide("client", code, epoch)
		assert.Equal(t, gate.Accepted, d.Outcome, "code %q", code)
	}
}

func TestMalformedCodeIsMismatch(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	for i, code := range []string{"", "   ", "A7B2C9", "A7B2C9DX", "A 7B2C9D"} {
		d := engine.Decide("client", code, epoch)
		require.Equal(gate.Rejected, d.Outcome, "code %q", code)
		require.Equal(maxAttempts-i-1, d.AttemptsRemaining)
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	for i := 0; i < maxAttempts; i++ {
		engine.Decide("A", "nope", epoch)
	}
	require.Equal(gate.Locked, engine.Decide("A", secret, epoch).Outcome)

	d := engine.Decide("B", "nope", epoch)
	require.Equal(gate.Rejected, d.Outcome)
	require.Equal(maxAttempts-1, d.AttemptsRemaining)
	require.Equal(gate.Accepted, engine.Decide("B", secret, epoch).Outcome)
}

func TestConcurrentSameIdentity(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	total := maxAttempts + 5

	var wg sync.WaitGroup
	decisions := make(chan gate.Decision, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decisions <- engine.Decide("client", "nope", epoch)
		}()
	}
	wg.Wait()
	close(decisions)

	counts := map[gate.Outcome]int{}
	remaining := map[int]bool{}
	for d := range decisions {
		counts[d.Outcome]++
		if d.Outcome == gate.Rejected {
			remaining[d.AttemptsRemaining] = true
		}
	}

	require.Equal(maxAttempts, counts[gate.Rejected])
	require.Equal(total-maxAttempts, counts[gate.Locked])
	require.Len(remaining, maxAttempts)
	require.Equal(maxAttempts, engine.Ledger().Get("client").Attempts)
}

func TestWorkedExample(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	engine := newEngine(t)
	for i, want := range []int{4, 3, 2, 1, 0} {
		d := engine.Decide("203.0.113.7", fmt.Sprintf("WRONG%02d", i+1), epoch)
		require.Equal(gate.Rejected, d.Outcome)
		require.Equal(want, d.AttemptsRemaining)
	}

	require.Equal(gate.Locked, engine.Decide("203.0.113.7", "anything", epoch).Outcome)
	require.Equal(gate.Accepted, engine.Decide("203.0.113.7", "a7b2c9d", epoch.Add(timeout+time.Millisecond)).Outcome)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "accepted", gate.Accepted.String())
	assert.Equal(t, "rejected", gate.Rejected.String())
	assert.Equal(t, "locked", gate.Locked.String())
	assert.Equal(t, "unknown", gate.Outcome(0).String())
}
