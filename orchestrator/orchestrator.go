// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

const (
	// attemptTimeout is the per-attempt deadline racing each adapter call.
	attemptTimeout = 30 * time.Second

	// maxInnerRetries is the retry budget per provider (three attempts total).
	maxInnerRetries = 2

	// backoffBase and backoffCap bound the exponential retry backoff.
	backoffBase = time.Second
	backoffCap  = 5 * time.Second

	// confidenceGate is the analyzer confidence above which the
	// recommendation leads the dispatch order.
	confidenceGate = 70
)

// errCancelled marks caller cancellation inside the dispatch loop.
var errCancelled = errors.New("cancelled")

// QueryAnalysis is the envelope block describing how the query was
// classified. Present only on success.
type QueryAnalysis struct {
	Type                QueryType `json:"type"`
	RecommendedProvider string    `json:"recommended_provider"`
	Confidence          float64   `json:"confidence"`
	Reasoning           string    `json:"reasoning"`
}

// UnifiedResult is the orchestrator's result envelope. The public
// boundary never returns an error: failures are envelopes with
// Success false and an Error string.
type UnifiedResult struct {
	Results          []SearchResult `json:"results"`
	Provider         string         `json:"provider_used"`
	FallbackAttempts []string       `json:"fallback_attempts"`
	TotalTimeMS      int64          `json:"total_time_ms"`
	Success          bool           `json:"success"`
	Error            string         `json:"error,omitempty"`
	QueryAnalysis    *QueryAnalysis `json:"query_analysis,omitempty"`
}

// Orchestrator combines the analyzer recommendation with the adaptive
// ranking, dispatches with per-attempt deadlines and bounded retries,
// falls back across providers and records every outcome. One instance
// is shared process-wide and is safe for concurrent callers.
type Orchestrator struct {
	registry *Registry
	analyzer *QueryAnalyzer
	health   *HealthManager
	tracker  *PerformanceTracker
	config   *Config
	state    *StateManager
	archive  *PerformanceArchive
	metrics  *Metrics
	clock    Clock
	logger   *log.Logger

	// sleep is injectable so tests do not wait out real backoffs.
	sleep func(ctx context.Context, d time.Duration) error
}

// OrchestratorDeps wires an orchestrator. Registry, Health, Tracker
// and Config are required; State, Archive and Metrics are optional.
type OrchestratorDeps struct {
	Registry *Registry
	Analyzer *QueryAnalyzer
	Health   *HealthManager
	Tracker  *PerformanceTracker
	Config   *Config
	State    *StateManager
	Archive  *PerformanceArchive
	Metrics  *Metrics
	Clock    Clock
	Logger   *log.Logger
}

// NewOrchestrator assembles the orchestrator and wires the snapshot
// plumbing: subsystem mutations schedule saves, and the state manager
// collects from the live subsystems.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		registry: deps.Registry,
		analyzer: deps.Analyzer,
		health:   deps.Health,
		tracker:  deps.Tracker,
		config:   deps.Config,
		state:    deps.State,
		archive:  deps.Archive,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		logger:   deps.Logger,
		sleep:    sleepWithContext,
	}

	if o.analyzer == nil {
		o.analyzer = NewQueryAnalyzer()
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}
	if o.logger == nil {
		o.logger = log.New(os.Stdout, "[ORCHESTRATOR] ", log.LstdFlags)
	}

	if o.state != nil {
		o.state.SetCollector(o.collectSnapshot)
		o.health.SetOnMutate(o.state.ScheduleSave)
		o.tracker.SetOnMutate(o.state.ScheduleSave)
		o.config.SetOnMutate(o.state.ScheduleSave)
	}

	return o
}

// RestoreFromState loads the persisted snapshot into the live
// subsystems. Missing or mismatched snapshots leave defaults in place.
func (o *Orchestrator) RestoreFromState(ctx context.Context) error {
	if o.state == nil {
		return nil
	}
	snap, err := o.state.Load(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	o.health.Restore(snap.ProviderHealth)
	o.tracker.Restore(snap.PerformanceRecords)
	o.config.ApplyOverrides(snap.ConfigurationOverrides)
	o.logger.Printf("restored state: %d health records, %d performance records",
		len(snap.ProviderHealth), len(snap.PerformanceRecords))
	return nil
}

// collectSnapshot assembles the full persisted document from the live
// subsystems.
func (o *Orchestrator) collectSnapshot() Snapshot {
	return Snapshot{
		ProviderHealth:         o.health.Snapshot(),
		PerformanceRecords:     o.tracker.History(),
		ConfigurationOverrides: o.config.Overrides(),
	}
}

// UnifiedSearch runs the full selection/dispatch/fallback loop over
// the search category.
func (o *Orchestrator) UnifiedSearch(ctx context.Context, params SearchParams) UnifiedResult {
	return o.run(ctx, params, CategorySearch)
}

// UnifiedAISearch runs the same loop over the ai_response category.
// The analyzer recommendation is not consulted; dispatch order is the
// adaptive ranking over the configured priority order.
func (o *Orchestrator) UnifiedAISearch(ctx context.Context, params SearchParams) UnifiedResult {
	return o.run(ctx, params, CategoryAIResponse)
}

func (o *Orchestrator) run(ctx context.Context, params SearchParams, category Category) UnifiedResult {
	start := o.clock.Now()
	params = params.Normalize()
	characteristics := o.analyzer.Analyze(params.Query)

	available := o.AvailableProviders(category)
	if len(available) == 0 {
		o.logger.Printf("no %s providers available for query", category)
		res := UnifiedResult{
			FallbackAttempts: []string{},
			TotalTimeMS:      o.clock.Now().Sub(start).Milliseconds(),
			Error:            fmt.Sprintf("no %s providers available", category),
		}
		o.metrics.observeSearch(category, false, 0)
		return res
	}

	var recommendation Recommendation
	order := o.tracker.AdaptiveRanking(characteristics, available)
	if category == CategorySearch {
		recommendation = o.analyzer.RecommendProvider(characteristics, available)
		order = o.dispatchOrder(recommendation, order, available)
	}

	attempts := []string{}
	for i, name := range order {
		if i > 0 {
			if err := o.sleep(ctx, o.config.FallbackDelay()); err != nil {
				return o.cancelledResult(start, category, attempts)
			}
		}

		searcher, ok := o.registry.Get(name)
		if !ok {
			continue
		}

		attemptStart := o.clock.Now()
		results, err := o.attemptSearch(ctx, searcher, params)
		elapsed := o.clock.Now().Sub(attemptStart).Milliseconds()

		if err == nil {
			o.recordOutcome(params.Query, characteristics, name, true, elapsed, len(results), nil)
			o.metrics.observeAttempt(name, "", elapsed)
			o.metrics.observeSearch(category, true, len(attempts))

			res := UnifiedResult{
				Results:          results,
				Provider:         name,
				FallbackAttempts: attempts,
				TotalTimeMS:      o.clock.Now().Sub(start).Milliseconds(),
				Success:          true,
			}
			if category == CategorySearch {
				res.QueryAnalysis = &QueryAnalysis{
					Type:                characteristics.QueryType,
					RecommendedProvider: recommendation.Provider,
					Confidence:          recommendation.Confidence,
					Reasoning:           recommendation.Reasoning,
				}
			}
			return res
		}

		if errors.Is(err, errCancelled) || ctx.Err() != nil {
			return o.cancelledResult(start, category, attempts)
		}

		serr := WrapSearchError(name, err)
		o.recordOutcome(params.Query, characteristics, name, false, elapsed, 0, serr)
		o.metrics.observeAttempt(name, serr.Kind, elapsed)
		attempts = append(attempts, name)
		o.logger.Printf("provider %s failed (%s), %d of %d tried", name, serr.Kind, len(attempts), len(order))

		if !o.config.FallbackEnabled() {
			break
		}
	}

	o.metrics.observeSearch(category, false, len(attempts))
	return UnifiedResult{
		FallbackAttempts: attempts,
		TotalTimeMS:      o.clock.Now().Sub(start).Milliseconds(),
		Error:            fmt.Sprintf("All %d %s providers failed", len(attempts), category),
	}
}

// dispatchOrder applies the confidence gate: a high-confidence
// recommendation leads, followed by the adaptive ranking minus the
// recommended provider. Otherwise the adaptive ranking stands.
func (o *Orchestrator) dispatchOrder(rec Recommendation, adaptive, available []string) []string {
	if rec.Provider == "" || rec.Confidence <= confidenceGate || !containsString(available, rec.Provider) {
		return adaptive
	}

	order := make([]string, 0, len(adaptive))
	order = append(order, rec.Provider)
	for _, name := range adaptive {
		if name != rec.Provider {
			order = append(order, name)
		}
	}
	return order
}

// attemptSearch dispatches to one provider with the per-attempt
// deadline and bounded retries. Non-retryable kinds surface
// immediately to the fallback loop.
func (o *Orchestrator) attemptSearch(ctx context.Context, s Searcher, params SearchParams) ([]SearchResult, error) {
	var lastErr *SearchError

	for attempt := 0; attempt <= maxInnerRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		results, err := s.Search(attemptCtx, params)
		cancel()

		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			// Caller cancellation, not a provider failure.
			return nil, errCancelled
		}

		lastErr = WrapSearchError(s.Name(), err)
		if !lastErr.Retryable() || attempt == maxInnerRetries {
			break
		}

		backoff := backoffBase << attempt
		if backoff > backoffCap {
			backoff = backoffCap
		}
		if err := o.sleep(ctx, backoff); err != nil {
			return nil, errCancelled
		}
	}

	return nil, lastErr
}

// recordOutcome feeds one attempt outcome to the tracker, the health
// manager and the optional archive. The adapter's original error is
// passed through so reset hints and messages reach the health manager.
func (o *Orchestrator) recordOutcome(query string, c QueryCharacteristics, provider string, success bool, elapsedMS int64, resultCount int, serr *SearchError) {
	var kind ErrorKind
	if serr != nil {
		kind = serr.Kind
	}
	rec := PerformanceRecord{
		Query:           query,
		Characteristics: c,
		Provider:        provider,
		Success:         success,
		ResponseTimeMS:  elapsedMS,
		ResultCount:     resultCount,
		Timestamp:       o.clock.Now(),
		ErrorKind:       kind,
	}
	o.tracker.Record(rec)

	if success {
		o.health.RecordSuccess(provider)
	} else {
		o.health.RecordFailure(provider, serr)
	}

	if o.archive != nil {
		o.archive.Record(rec)
	}
}

func (o *Orchestrator) cancelledResult(start time.Time, category Category, attempts []string) UnifiedResult {
	o.metrics.observeSearch(category, false, len(attempts))
	return UnifiedResult{
		FallbackAttempts: attempts,
		TotalTimeMS:      o.clock.Now().Sub(start).Milliseconds(),
		Error:            "cancelled",
	}
}

// AvailableProviders returns the configured priority order for a
// category intersected with registration, enablement and health.
func (o *Orchestrator) AvailableProviders(category Category) []string {
	var available []string
	for _, name := range o.config.Order(category) {
		if !o.registry.Has(name) {
			continue
		}
		if cat, ok := o.registry.CategoryOf(name); !ok || cat != category {
			continue
		}
		if !o.config.IsEnabled(name) {
			continue
		}
		if !o.health.IsAvailable(name) {
			continue
		}
		available = append(available, name)
	}
	return available
}

// sleepWithContext pauses for d or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
