// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// defaultRateLimitCooldown applies when a rate-limited back-end
	// does not tell us when the window resets.
	defaultRateLimitCooldown = time.Hour

	// creditCooldown applies to exhausted credits and hard quotas.
	creditCooldown = 24 * time.Hour

	// failureResetTime is how recent a success must be for the
	// failure count to decay on availability checks.
	failureResetTime = 30 * time.Minute
)

// HealthError is the last recorded failure for a provider.
type HealthError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// ProviderHealth is the per-provider availability record. All cooldown
// expiry is lazy: timestamps are checked (and cleared) on the next
// availability query rather than by a background timer.
type ProviderHealth struct {
	Available               bool         `json:"available"`
	FailureCount            int          `json:"failure_count"`
	LastSuccess             *time.Time   `json:"last_success,omitempty"`
	LastError               *HealthError `json:"last_error,omitempty"`
	RateLimitedUntil        *time.Time   `json:"rate_limited_until,omitempty"`
	CircuitBreakerOpen      bool         `json:"circuit_breaker_open"`
	CircuitBreakerOpenUntil *time.Time   `json:"circuit_breaker_open_until,omitempty"`
}

// HealthManager tracks availability for every registered provider.
// It is the single writer for health state; the orchestrator reports
// attempt outcomes and queries availability through it.
type HealthManager struct {
	mu      sync.Mutex
	records map[string]*ProviderHealth

	clock            Clock
	breakerThreshold int
	breakerTimeout   time.Duration

	// onMutate schedules a snapshot save; set once during wiring.
	onMutate func()

	logger *log.Logger
}

// NewHealthManager creates a health manager with the given breaker
// parameters.
func NewHealthManager(clock Clock, breakerThreshold int, breakerTimeout time.Duration) *HealthManager {
	return &HealthManager{
		records:          make(map[string]*ProviderHealth),
		clock:            clock,
		breakerThreshold: breakerThreshold,
		breakerTimeout:   breakerTimeout,
		logger:           log.New(os.Stdout, "[HEALTH] ", log.LstdFlags),
	}
}

// SetOnMutate registers the save scheduler invoked after every
// state-changing event.
func (m *HealthManager) SetOnMutate(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMutate = fn
}

// SetBreakerParams updates the circuit-breaker threshold and timeout.
func (m *HealthManager) SetBreakerParams(threshold int, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerThreshold = threshold
	m.breakerTimeout = timeout
}

// Track creates the health record for a provider if it does not exist.
func (m *HealthManager) Track(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(name)
}

// record returns the health record for name, creating it lazily.
// Caller must hold m.mu.
func (m *HealthManager) record(name string) *ProviderHealth {
	if h, ok := m.records[name]; ok {
		return h
	}
	h := &ProviderHealth{Available: true}
	m.records[name] = h
	return h
}

// RecordSuccess clears all failure state for the provider.
func (m *HealthManager) RecordSuccess(name string) {
	m.mu.Lock()
	h := m.record(name)
	now := m.clock.Now()

	h.LastError = nil
	h.RateLimitedUntil = nil
	h.CircuitBreakerOpen = false
	h.CircuitBreakerOpenUntil = nil
	h.FailureCount = 0
	h.Available = true
	h.LastSuccess = &now

	fn := m.onMutate
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// RecordFailure applies the failure transition for the classified
// error kind.
func (m *HealthManager) RecordFailure(name string, err error) {
	se := WrapSearchError(name, err)

	m.mu.Lock()
	h := m.record(name)
	now := m.clock.Now()

	h.LastError = &HealthError{Kind: se.Kind, Message: se.Message, Details: se.Details}

	switch se.Kind {
	case ErrRateLimit:
		until := now.Add(defaultRateLimitCooldown)
		if se.ResetAt != nil {
			until = *se.ResetAt
		}
		h.RateLimitedUntil = &until
		h.Available = false
		m.logger.Printf("provider %s rate limited until %s", name, until.Format(time.RFC3339))

	case ErrCreditExhausted, ErrQuotaExceeded:
		until := now.Add(creditCooldown)
		h.RateLimitedUntil = &until
		h.Available = false
		m.logger.Printf("provider %s out of credits, cooling down until %s", name, until.Format(time.RFC3339))

	case ErrAuthentication:
		// No timed recovery; stays down until a manual reset.
		h.Available = false
		m.logger.Printf("provider %s disabled: authentication failure", name)

	case ErrProvider, ErrTimeout:
		m.countTowardBreaker(name, h, now)

	case ErrInvalidInput:
		// Caller error, not a provider health signal.

	default: // ErrAPI and anything unclassified
		msg := strings.ToLower(se.Message)
		switch {
		case strings.Contains(msg, "credit") || strings.Contains(msg, "quota") || strings.Contains(msg, "limit"):
			until := now.Add(creditCooldown)
			h.RateLimitedUntil = &until
			h.Available = false
		case strings.Contains(msg, "invalid api key") || strings.Contains(msg, "unauthorized"):
			h.Available = false
		default:
			h.FailureCount++
		}
	}

	fn := m.onMutate
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// countTowardBreaker increments the failure count and opens the
// breaker at the configured threshold. Caller must hold m.mu.
func (m *HealthManager) countTowardBreaker(name string, h *ProviderHealth, now time.Time) {
	h.FailureCount++
	if h.FailureCount >= m.breakerThreshold {
		until := now.Add(m.breakerTimeout)
		h.CircuitBreakerOpen = true
		h.CircuitBreakerOpenUntil = &until
		h.Available = false
		m.logger.Printf("circuit breaker opened for %s after %d failures (until %s)",
			name, h.FailureCount, until.Format(time.RFC3339))
	}
}

// IsAvailable reports whether a provider may be dispatched to right
// now, applying lazy cooldown and breaker expiry first.
func (m *HealthManager) IsAvailable(name string) bool {
	m.mu.Lock()
	h := m.record(name)
	now := m.clock.Now()
	mutated := false

	if h.RateLimitedUntil != nil && !now.Before(*h.RateLimitedUntil) {
		h.RateLimitedUntil = nil
		h.Available = true
		mutated = true
	}
	if h.CircuitBreakerOpenUntil != nil && !now.Before(*h.CircuitBreakerOpenUntil) {
		h.CircuitBreakerOpen = false
		h.CircuitBreakerOpenUntil = nil
		h.FailureCount = 0
		h.Available = true
		mutated = true
	}
	if h.LastSuccess != nil && now.Sub(*h.LastSuccess) < failureResetTime && h.FailureCount > 0 {
		h.FailureCount /= 2
		mutated = true
	}

	available := h.Available && !h.CircuitBreakerOpen &&
		(h.RateLimitedUntil == nil || !h.RateLimitedUntil.After(now))

	var fn func()
	if mutated {
		fn = m.onMutate
	}
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
	return available
}

// Reset clears all failure state and returns the provider to service.
func (m *HealthManager) Reset(name string) {
	m.mu.Lock()
	h := m.record(name)
	*h = ProviderHealth{Available: true, LastSuccess: h.LastSuccess}
	fn := m.onMutate
	m.mu.Unlock()

	m.logger.Printf("provider %s health manually reset", name)
	if fn != nil {
		fn()
	}
}

// Get returns a copy of the provider's health record.
func (m *HealthManager) Get(name string) (ProviderHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.records[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return *h, true
}

// Snapshot returns a copy of every health record for persistence and
// reporting.
func (m *HealthManager) Snapshot() map[string]ProviderHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ProviderHealth, len(m.records))
	for name, h := range m.records {
		out[name] = *h
	}
	return out
}

// Restore replaces the in-memory records with a persisted snapshot.
func (m *HealthManager) Restore(records map[string]ProviderHealth) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]*ProviderHealth, len(records))
	for name, h := range records {
		copied := h
		m.records[name] = &copied
	}
}
