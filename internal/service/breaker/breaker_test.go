package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	b := New(Config{FailureThreshold: threshold, Cooldown: cooldown})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.OnFailure()
	}
	assert.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreakerSuccessDecrementsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	// Alternating success and failure keeps the count below threshold.
	for i := 0; i < 10; i++ {
		b.OnFailure()
		b.OnSuccess()
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())

	// Decrement floors at zero.
	b.OnSuccess()
	b.OnSuccess()
	assert.Equal(t, 0, b.Failures())
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)

	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())

	*now = now.Add(31 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// First caller wins the probe, concurrent callers are refused.
	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)

	b.OnFailure()
	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())

	b.OnSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	require.NoError(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)

	b.OnFailure()
	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())

	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	// Fresh cooldown from the probe failure, not the original trip.
	*now = now.Add(29 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrOpen)
	*now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
}

func TestRegistryPerProviderIsolation(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, Cooldown: time.Minute}, nil, nil, nil)

	r.OnFailure("sentiment")
	assert.ErrorIs(t, r.Allow("sentiment"), ErrOpen)
	assert.NoError(t, r.Allow("consensus"))
	assert.Equal(t, 1, r.OpenCount())
}

func TestRegistryOverrides(t *testing.T) {
	r := NewRegistry(
		Config{FailureThreshold: 5, Cooldown: time.Minute},
		map[string]Config{"policy_engine": {FailureThreshold: 1, Cooldown: time.Minute}},
		nil, nil,
	)

	r.OnFailure("policy_engine")
	assert.ErrorIs(t, r.Allow("policy_engine"), ErrOpen)

	r.OnFailure("sentiment")
	assert.NoError(t, r.Allow("sentiment"))
}
