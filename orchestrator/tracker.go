// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// PerformanceRecord is one dispatched attempt, success or failure.
type PerformanceRecord struct {
	Query           string               `json:"query"`
	Characteristics QueryCharacteristics `json:"characteristics"`
	Provider        string               `json:"provider_used"`
	Success         bool                 `json:"success"`
	ResponseTimeMS  int64                `json:"response_time_ms"`
	ResultCount     int                  `json:"result_count"`
	Timestamp       time.Time            `json:"timestamp"`
	ErrorKind       ErrorKind            `json:"error_kind,omitempty"`
	UserFeedback    string               `json:"user_feedback,omitempty"`
}

// TypeStats is the per-query-type aggregate for one provider.
// Maintained incrementally on every record, never by scanning history.
type TypeStats struct {
	Count           int     `json:"count"`
	SuccessRate     float64 `json:"success_rate"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// RecentPerformance holds success rates over sliding windows.
type RecentPerformance struct {
	LastHour float64 `json:"last_hour"`
	LastDay  float64 `json:"last_day"`
	LastWeek float64 `json:"last_week"`
}

// ProviderStats is the rolling aggregate for one provider.
type ProviderStats struct {
	TotalRequests       int                      `json:"total_requests"`
	SuccessfulRequests  int                      `json:"successful_requests"`
	FailedRequests      int                      `json:"failed_requests"`
	SuccessRate         float64                  `json:"success_rate"`
	AverageResponseTime float64                  `json:"average_response_time"`
	QueryTypeStats      map[QueryType]*TypeStats `json:"query_type_performance"`
	Recent              RecentPerformance        `json:"recent_performance"`
}

// Insights summarizes tracker state for the performance endpoint.
type Insights struct {
	BestOverall   string   `json:"best_overall,omitempty"`
	BestForSpeed  string   `json:"best_for_speed,omitempty"`
	MostReliable  string   `json:"most_reliable,omitempty"`
	TrendingUp    []string `json:"trending_up,omitempty"`
	TrendingDown  []string `json:"trending_down,omitempty"`
	TotalRequests int      `json:"total_requests"`
}

// Adaptive ranking weights. They sum to 1.0.
const (
	weightOverallRate = 0.2
	weightRecentHour  = 0.3
	weightTypeRate    = 0.4
	weightSpeed       = 0.1

	// unknownProviderScore ranks providers that have no history yet.
	unknownProviderScore = 0.5

	// minTypeSamples gates per-type rates into the ranking formula.
	minTypeSamples = 3

	// speedCeilingMS is the response time that scores zero on speed.
	speedCeilingMS = 30000
)

// PerformanceTracker appends attempt outcomes, maintains incremental
// per-provider aggregates and produces the adaptive ranking.
type PerformanceTracker struct {
	mu         sync.Mutex
	history    []PerformanceRecord
	maxHistory int
	stats      map[string]*ProviderStats

	clock    Clock
	onMutate func()
}

// NewPerformanceTracker creates a tracker with the given history cap.
func NewPerformanceTracker(clock Clock, maxHistory int) *PerformanceTracker {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &PerformanceTracker{
		maxHistory: maxHistory,
		stats:      make(map[string]*ProviderStats),
		clock:      clock,
	}
}

// SetOnMutate registers the save scheduler invoked after each record.
func (t *PerformanceTracker) SetOnMutate(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMutate = fn
}

// Record appends one attempt outcome. The aggregate update is O(1);
// only the sliding-window rates rescan the provider's history slice.
func (t *PerformanceTracker) Record(rec PerformanceRecord) {
	t.mu.Lock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = t.clock.Now()
	}

	t.history = append(t.history, rec)
	if len(t.history) > t.maxHistory {
		t.history = t.history[len(t.history)-t.maxHistory:]
	}

	t.updateStats(rec)

	fn := t.onMutate
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// updateStats applies one record to the provider aggregate.
// Caller must hold t.mu.
func (t *PerformanceTracker) updateStats(rec PerformanceRecord) {
	s, ok := t.stats[rec.Provider]
	if !ok {
		s = &ProviderStats{QueryTypeStats: make(map[QueryType]*TypeStats)}
		t.stats[rec.Provider] = s
	}

	s.TotalRequests++
	if rec.Success {
		s.SuccessfulRequests++
	} else {
		s.FailedRequests++
	}
	s.SuccessRate = float64(s.SuccessfulRequests) / float64(s.TotalRequests)

	// Running mean over all requests for this provider.
	s.AverageResponseTime += (float64(rec.ResponseTimeMS) - s.AverageResponseTime) / float64(s.TotalRequests)

	ts, ok := s.QueryTypeStats[rec.Characteristics.QueryType]
	if !ok {
		ts = &TypeStats{}
		s.QueryTypeStats[rec.Characteristics.QueryType] = ts
	}
	ts.Count++
	ts.AvgResponseTime += (float64(rec.ResponseTimeMS) - ts.AvgResponseTime) / float64(ts.Count)
	outcome := 0.0
	if rec.Success {
		outcome = 1.0
	}
	ts.SuccessRate = (ts.SuccessRate*float64(ts.Count-1) + outcome) / float64(ts.Count)

	s.Recent = t.recentWindows(rec.Provider)
}

// recentWindows recomputes the sliding-window success rates for one
// provider by filtering its slice of history. Caller must hold t.mu.
func (t *PerformanceTracker) recentWindows(provider string) RecentPerformance {
	now := t.clock.Now()

	var counts, successes [3]int
	cutoffs := [3]time.Time{
		now.Add(-time.Hour),
		now.Add(-24 * time.Hour),
		now.Add(-7 * 24 * time.Hour),
	}

	for i := range t.history {
		rec := &t.history[i]
		if rec.Provider != provider {
			continue
		}
		for w, cutoff := range cutoffs {
			if !rec.Timestamp.Before(cutoff) {
				counts[w]++
				if rec.Success {
					successes[w]++
				}
			}
		}
	}

	rate := func(w int) float64 {
		if counts[w] == 0 {
			return 0
		}
		return float64(successes[w]) / float64(counts[w])
	}
	return RecentPerformance{LastHour: rate(0), LastDay: rate(1), LastWeek: rate(2)}
}

// AdaptiveRanking orders the candidates by weighted historical
// performance for this query's characteristics. Candidates without
// history score 0.5; ties keep the input order.
func (t *PerformanceTracker) AdaptiveRanking(c QueryCharacteristics, candidates []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	type scored struct {
		name  string
		score float64
	}

	ranked := make([]scored, 0, len(candidates))
	for _, name := range candidates {
		s, ok := t.stats[name]
		if !ok || s.TotalRequests == 0 {
			ranked = append(ranked, scored{name, unknownProviderScore})
			continue
		}

		typeRate := s.SuccessRate
		if ts, ok := s.QueryTypeStats[c.QueryType]; ok && ts.Count >= minTypeSamples {
			typeRate = ts.SuccessRate
		}

		speed := 1 - s.AverageResponseTime/speedCeilingMS
		if speed < 0 {
			speed = 0
		}

		score := weightOverallRate*s.SuccessRate +
			weightRecentHour*s.Recent.LastHour +
			weightTypeRate*typeRate +
			weightSpeed*speed

		ranked = append(ranked, scored{name, score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.name
	}
	return names
}

// Stats returns a deep copy of every provider aggregate.
func (t *PerformanceTracker) Stats() map[string]ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ProviderStats, len(t.stats))
	for name, s := range t.stats {
		copied := *s
		copied.QueryTypeStats = make(map[QueryType]*TypeStats, len(s.QueryTypeStats))
		for qt, ts := range s.QueryTypeStats {
			tsCopy := *ts
			copied.QueryTypeStats[qt] = &tsCopy
		}
		out[name] = copied
	}
	return out
}

// History returns a copy of the capped record history.
func (t *PerformanceTracker) History() []PerformanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PerformanceRecord, len(t.history))
	copy(out, t.history)
	return out
}

// Insights derives headline findings from the aggregates.
func (t *PerformanceTracker) Insights() Insights {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ins Insights
	bestOverall, bestSpeed, bestReliability := -1.0, 0.0, -1.0

	names := make([]string, 0, len(t.stats))
	for name := range t.stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := t.stats[name]
		ins.TotalRequests += s.TotalRequests

		overall := s.SuccessRate * (1 - s.AverageResponseTime/10000)
		if overall > bestOverall {
			bestOverall = overall
			ins.BestOverall = name
		}
		if ins.BestForSpeed == "" || s.AverageResponseTime < bestSpeed {
			bestSpeed = s.AverageResponseTime
			ins.BestForSpeed = name
		}
		if s.SuccessRate > bestReliability {
			bestReliability = s.SuccessRate
			ins.MostReliable = name
		}

		delta := s.Recent.LastHour - s.Recent.LastWeek
		switch {
		case delta > 0.1:
			ins.TrendingUp = append(ins.TrendingUp, name)
		case delta < -0.1:
			ins.TrendingDown = append(ins.TrendingDown, name)
		}
	}

	return ins
}

// Restore rebuilds history and aggregates from persisted records,
// truncating to the history cap first.
func (t *PerformanceTracker) Restore(records []PerformanceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(records) > t.maxHistory {
		records = records[len(records)-t.maxHistory:]
	}

	t.history = nil
	t.stats = make(map[string]*ProviderStats)
	for _, rec := range records {
		t.history = append(t.history, rec)
		t.updateStats(rec)
	}
}
