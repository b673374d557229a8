package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterConsumesAndRefills(t *testing.T) {
	l := New()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("BTC", 3, 1))
	}
	assert.False(t, l.Allow("BTC", 3, 1))

	// Two seconds refill two tokens.
	now = now.Add(2 * time.Second)
	assert.True(t, l.Allow("BTC", 3, 1))
	assert.True(t, l.Allow("BTC", 3, 1))
	assert.False(t, l.Allow("BTC", 3, 1))
}

func TestLimiterKeysIndependent(t *testing.T) {
	l := New()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("BTC", 1, 1))
	assert.False(t, l.Allow("BTC", 1, 1))
	assert.True(t, l.Allow("ETH", 1, 1))
}

func TestLimiterCapsAtCapacity(t *testing.T) {
	l := New()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("BTC", 2, 1))
	now = now.Add(time.Hour)

	// Long idle refills to capacity, not beyond.
	assert.True(t, l.Allow("BTC", 2, 1))
	assert.True(t, l.Allow("BTC", 2, 1))
	assert.False(t, l.Allow("BTC", 2, 1))
}
