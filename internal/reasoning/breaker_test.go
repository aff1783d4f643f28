package reasoning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_StaysClosedUnderThreshold(t *testing.T) {
	b := NewBreaker()
	for i := 0; i < 4; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAtFiveFailures(t *testing.T) {
	b := NewBreaker()
	for i := 0; i < 5; i++ {
		b.Allow()
		b.RecordFailure()
	}
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	b := NewBreaker()
	for i := 0; i < 5; i++ {
		b.Allow()
		b.RecordFailure()
	}
	require.Equal(t, Open, b.State())

	// force the cooldown to have elapsed
	b.mu.Lock()
	b.openUntil = time.Now().Add(-time.Second)
	b.mu.Unlock()

	require.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopensWithDoubledCooldown(t *testing.T) {
	b := NewBreaker()
	for i := 0; i < 5; i++ {
		b.Allow()
		b.RecordFailure()
	}
	firstCooldown := time.Until(b.openUntil)

	b.mu.Lock()
	b.openUntil = time.Now().Add(-time.Second)
	b.mu.Unlock()
	b.Allow() // transition to HalfOpen

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
	secondCooldown := time.Until(b.openUntil)
	assert.Greater(t, secondCooldown, firstCooldown)
}

func TestBreaker_CooldownCapsAt300s(t *testing.T) {
	b := NewBreaker()
	for cycle := 0; cycle < 10; cycle++ {
		for i := 0; i < 5; i++ {
			b.Allow()
			b.RecordFailure()
		}
		b.mu.Lock()
		b.openUntil = time.Now().Add(-time.Second)
		b.mu.Unlock()
		b.Allow()
	}
	b.mu.Lock()
	remaining := time.Until(b.openUntil)
	b.mu.Unlock()
	assert.LessOrEqual(t, remaining, 300*time.Second+time.Second)
}
