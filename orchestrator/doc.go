// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package orchestrator routes search queries across multiple back-end
// providers. It classifies each query, picks the best provider from a
// capability model blended with observed performance, dispatches with
// per-attempt deadlines and bounded retries, and falls back through
// the remaining providers in priority order. Provider health (rate
// limits, credit exhaustion, a consecutive-failure circuit breaker)
// and performance history survive restarts through a throttled JSON
// snapshot kept in a file or in Redis.
package orchestrator
