// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHealth(clock Clock) *HealthManager {
	return NewHealthManager(clock, 5, 60*time.Second)
}

func TestHealth_UnknownProviderAvailable(t *testing.T) {
	m := newTestHealth(newFakeClock())

	assert.True(t, m.IsAvailable("tavily"))
}

func TestHealth_RateLimitCooldownExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	m.RecordFailure("tavily", NewSearchError("tavily", ErrRateLimit, "429 too many requests"))
	assert.False(t, m.IsAvailable("tavily"))

	// One second before expiry: still down.
	clock.Advance(defaultRateLimitCooldown - time.Second)
	assert.False(t, m.IsAvailable("tavily"))

	// Exactly at expiry: available again, record cleared.
	clock.Advance(time.Second)
	assert.True(t, m.IsAvailable("tavily"))

	h, ok := m.Get("tavily")
	require.True(t, ok)
	assert.Nil(t, h.RateLimitedUntil)
	assert.True(t, h.Available)
}

func TestHealth_RateLimitHonorsServerReset(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	reset := clock.Now().Add(5 * time.Minute)
	m.RecordFailure("brave", &SearchError{
		Provider: "brave",
		Kind:     ErrRateLimit,
		Message:  "quota window",
		ResetAt:  &reset,
	})

	clock.Advance(4 * time.Minute)
	assert.False(t, m.IsAvailable("brave"))

	clock.Advance(time.Minute)
	assert.True(t, m.IsAvailable("brave"))
}

func TestHealth_CircuitBreakerOpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	for i := 0; i < 4; i++ {
		m.RecordFailure("exa", NewSearchError("exa", ErrProvider, "internal error"))
		assert.True(t, m.IsAvailable("exa"), "still available after %d failures", i+1)
	}

	m.RecordFailure("exa", NewSearchError("exa", ErrProvider, "internal error"))
	assert.False(t, m.IsAvailable("exa"))

	h, _ := m.Get("exa")
	assert.True(t, h.CircuitBreakerOpen)
	require.NotNil(t, h.CircuitBreakerOpenUntil)

	// Breaker half-opens after the timeout and failure count resets.
	clock.Advance(60 * time.Second)
	assert.True(t, m.IsAvailable("exa"))
	h, _ = m.Get("exa")
	assert.False(t, h.CircuitBreakerOpen)
	assert.Zero(t, h.FailureCount)
}

func TestHealth_TimeoutCountsTowardBreaker(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	for i := 0; i < 5; i++ {
		m.RecordFailure("kagi", NewSearchError("kagi", ErrTimeout, "attempt deadline exceeded"))
	}
	assert.False(t, m.IsAvailable("kagi"))
}

func TestHealth_AuthFailureStaysDownUntilReset(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	m.RecordFailure("perplexity", NewSearchError("perplexity", ErrAuthentication, "invalid key"))
	assert.False(t, m.IsAvailable("perplexity"))

	// No timed recovery even after a long wait.
	clock.Advance(48 * time.Hour)
	assert.False(t, m.IsAvailable("perplexity"))

	m.Reset("perplexity")
	assert.True(t, m.IsAvailable("perplexity"))
}

func TestHealth_CreditExhaustedUses24HourCooldown(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	m.RecordFailure("tavily", NewSearchError("tavily", ErrCreditExhausted, "credits spent"))

	clock.Advance(23 * time.Hour)
	assert.False(t, m.IsAvailable("tavily"))

	clock.Advance(time.Hour)
	assert.True(t, m.IsAvailable("tavily"))
}

func TestHealth_APIErrorMessageHeuristics(t *testing.T) {
	clock := newFakeClock()

	t.Run("credit message cools down", func(t *testing.T) {
		m := newTestHealth(clock)
		m.RecordFailure("exa", NewSearchError("exa", ErrAPI, "monthly credit limit reached"))
		assert.False(t, m.IsAvailable("exa"))
	})

	t.Run("auth message disables", func(t *testing.T) {
		m := newTestHealth(clock)
		m.RecordFailure("exa", NewSearchError("exa", ErrAPI, "Invalid API key provided"))
		assert.False(t, m.IsAvailable("exa"))
	})

	t.Run("generic message only counts", func(t *testing.T) {
		m := newTestHealth(clock)
		m.RecordFailure("exa", NewSearchError("exa", ErrAPI, "upstream hiccup"))
		assert.True(t, m.IsAvailable("exa"))
	})
}

func TestHealth_InvalidInputNotCounted(t *testing.T) {
	m := newTestHealth(newFakeClock())

	for i := 0; i < 10; i++ {
		m.RecordFailure("brave", NewSearchError("brave", ErrInvalidInput, "bad query"))
	}

	assert.True(t, m.IsAvailable("brave"))
	h, _ := m.Get("brave")
	assert.Zero(t, h.FailureCount)
}

func TestHealth_SuccessClearsEverything(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	m.RecordFailure("tavily", NewSearchError("tavily", ErrRateLimit, "429"))
	m.RecordFailure("tavily", NewSearchError("tavily", ErrProvider, "500"))
	m.RecordSuccess("tavily")

	assert.True(t, m.IsAvailable("tavily"))
	h, _ := m.Get("tavily")
	assert.Zero(t, h.FailureCount)
	assert.Nil(t, h.LastError)
	assert.Nil(t, h.RateLimitedUntil)
	require.NotNil(t, h.LastSuccess)
	assert.Equal(t, clock.Now(), *h.LastSuccess)
}

func TestHealth_RecentSuccessHalvesFailureCount(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	m.RecordSuccess("kagi")
	for i := 0; i < 4; i++ {
		m.RecordFailure("kagi", NewSearchError("kagi", ErrProvider, "500"))
	}

	// Availability check decays the count because the last success is
	// within the reset window.
	assert.True(t, m.IsAvailable("kagi"))
	h, _ := m.Get("kagi")
	assert.Equal(t, 2, h.FailureCount)
}

func TestHealth_SnapshotRestoreRoundTrip(t *testing.T) {
	clock := newFakeClock()
	m := newTestHealth(clock)

	m.RecordFailure("tavily", NewSearchError("tavily", ErrRateLimit, "429"))
	m.RecordSuccess("brave")

	snap := m.Snapshot()

	restored := newTestHealth(clock)
	restored.Restore(snap)

	assert.False(t, restored.IsAvailable("tavily"))
	assert.True(t, restored.IsAvailable("brave"))
	assert.Equal(t, snap, restored.Snapshot())
}

func TestHealth_MutateCallbackFires(t *testing.T) {
	m := newTestHealth(newFakeClock())

	calls := 0
	m.SetOnMutate(func() { calls++ })

	m.RecordFailure("tavily", NewSearchError("tavily", ErrProvider, "500"))
	m.RecordSuccess("tavily")
	m.Reset("tavily")

	assert.Equal(t, 3, calls)
}
