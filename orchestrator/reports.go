// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"fmt"
	"sort"
	"time"
)

// ProviderHealthEntry is one row of the health report.
type ProviderHealthEntry struct {
	Provider string         `json:"provider"`
	Category Category       `json:"category"`
	Enabled  bool           `json:"enabled"`
	Health   ProviderHealth `json:"health"`
}

// HealthReport is the full health view: every registered provider's
// record plus the currently dispatchable names per category.
type HealthReport struct {
	Providers           []ProviderHealthEntry `json:"providers"`
	AvailableSearch     []string              `json:"available_search"`
	AvailableAIResponse []string              `json:"available_ai_response"`
}

// ProviderHealthReport lists every registered provider with its
// current availability and health record.
func (o *Orchestrator) ProviderHealthReport() HealthReport {
	names := o.registry.List()
	entries := make([]ProviderHealthEntry, 0, len(names))

	for _, name := range names {
		category, _ := o.registry.CategoryOf(name)
		// IsAvailable first so lazy cooldown expiry is reflected.
		available := o.health.IsAvailable(name)
		health, ok := o.health.Get(name)
		if !ok {
			health = ProviderHealth{Available: true}
		}
		health.Available = available && o.config.IsEnabled(name)

		entries = append(entries, ProviderHealthEntry{
			Provider: name,
			Category: category,
			Enabled:  o.config.IsEnabled(name),
			Health:   health,
		})
	}

	return HealthReport{
		Providers:           entries,
		AvailableSearch:     nonNil(o.AvailableProviders(CategorySearch)),
		AvailableAIResponse: nonNil(o.AvailableProviders(CategoryAIResponse)),
	}
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}

// ResetProviderHealth clears one provider's health record.
func (o *Orchestrator) ResetProviderHealth(name string) error {
	if !o.registry.Has(name) {
		return fmt.Errorf("unknown provider %q", name)
	}
	o.health.Reset(name)
	o.logger.Printf("health reset for provider %s", name)
	return nil
}

// ConfigureRequest is the body of a provider configuration update.
type ConfigureRequest struct {
	SearchOrder      []string        `json:"search_order,omitempty"`
	AIResponseOrder  []string        `json:"ai_response_order,omitempty"`
	Enabled          map[string]bool `json:"enabled,omitempty"`
	FallbackEnabled  *bool           `json:"fallback_enabled,omitempty"`
	Mode             string          `json:"mode,omitempty"`
	BreakerThreshold *int            `json:"breaker_threshold,omitempty"`
	BreakerTimeoutMS *int            `json:"breaker_timeout_ms,omitempty"`
}

// ConfigureProviders applies a runtime configuration update. Order
// entries must name registered providers; breaker parameters follow
// the same ranges as their environment variables.
func (o *Orchestrator) ConfigureProviders(req ConfigureRequest) error {
	for _, name := range append(append([]string{}, req.SearchOrder...), req.AIResponseOrder...) {
		if !o.registry.Has(name) {
			return fmt.Errorf("unknown provider %q", name)
		}
	}
	if req.BreakerThreshold != nil && (*req.BreakerThreshold < minBreakerThresh || *req.BreakerThreshold > maxBreakerThresh) {
		return fmt.Errorf("breaker_threshold %d out of range %d..%d", *req.BreakerThreshold, minBreakerThresh, maxBreakerThresh)
	}
	if req.BreakerTimeoutMS != nil && (*req.BreakerTimeoutMS < minBreakerTimeout || *req.BreakerTimeoutMS > maxBreakerTimeout) {
		return fmt.Errorf("breaker_timeout_ms %d out of range %d..%d", *req.BreakerTimeoutMS, minBreakerTimeout, maxBreakerTimeout)
	}
	if req.Mode != "" {
		if err := o.config.SetMode(Mode(req.Mode)); err != nil {
			return err
		}
	}

	if req.SearchOrder != nil {
		o.config.SetOrder(CategorySearch, req.SearchOrder)
	}
	if req.AIResponseOrder != nil {
		o.config.SetOrder(CategoryAIResponse, req.AIResponseOrder)
	}
	for name, enabled := range req.Enabled {
		o.config.SetEnabled(name, enabled)
	}
	if req.FallbackEnabled != nil {
		o.config.SetFallbackEnabled(*req.FallbackEnabled)
	}

	if req.BreakerThreshold != nil || req.BreakerTimeoutMS != nil {
		threshold := o.config.BreakerThreshold()
		timeout := o.config.BreakerTimeout()
		if req.BreakerThreshold != nil {
			threshold = *req.BreakerThreshold
		}
		if req.BreakerTimeoutMS != nil {
			timeout = time.Duration(*req.BreakerTimeoutMS) * time.Millisecond
		}
		o.config.SetBreakerParams(threshold, timeout)
		o.health.SetBreakerParams(threshold, timeout)
	}
	return nil
}

// ProviderConfigEntry is one row of the configuration report.
type ProviderConfigEntry struct {
	Provider string           `json:"provider"`
	Category Category         `json:"category"`
	Settings ProviderSettings `json:"settings"`
}

// ConfigReport is the full configuration view, including the current
// provider health so one call answers both questions.
type ConfigReport struct {
	Mode            Mode                  `json:"mode"`
	SearchOrder     []string              `json:"search_order"`
	AIResponseOrder []string              `json:"ai_response_order"`
	FallbackEnabled bool                  `json:"fallback_enabled"`
	FallbackDelayMS int64                 `json:"fallback_delay_ms"`
	Providers       []ProviderConfigEntry `json:"providers"`
	ProviderHealth  HealthReport          `json:"provider_health"`
}

// ProviderConfig returns the current configuration.
func (o *Orchestrator) ProviderConfig() ConfigReport {
	settings := o.config.AllSettings()
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	providers := make([]ProviderConfigEntry, 0, len(names))
	for _, name := range names {
		category, _ := o.registry.CategoryOf(name)
		providers = append(providers, ProviderConfigEntry{
			Provider: name,
			Category: category,
			Settings: settings[name],
		})
	}

	return ConfigReport{
		Mode:            o.config.Mode(),
		SearchOrder:     o.config.Order(CategorySearch),
		AIResponseOrder: o.config.Order(CategoryAIResponse),
		FallbackEnabled: o.config.FallbackEnabled(),
		FallbackDelayMS: o.config.FallbackDelay().Milliseconds(),
		Providers:       providers,
		ProviderHealth:  o.ProviderHealthReport(),
	}
}

// AnalysisReport is the analyzer's view of one query without any
// dispatch: the characteristics plus the scored candidates.
type AnalysisReport struct {
	Characteristics QueryCharacteristics `json:"characteristics"`
	Recommendation  Recommendation       `json:"recommendation"`
	Scores          []ProviderScore      `json:"scores"`
}

// AnalyzeQuery classifies a query and scores the currently available
// search providers without dispatching anything.
func (o *Orchestrator) AnalyzeQuery(query string) AnalysisReport {
	c := o.analyzer.Analyze(query)
	available := o.AvailableProviders(CategorySearch)
	return AnalysisReport{
		Characteristics: c,
		Recommendation:  o.analyzer.RecommendProvider(c, available),
		Scores:          o.analyzer.ScoreProviders(c, available),
	}
}

// PerformanceReport bundles the per-provider aggregates with the
// headline insights and the raw record history for export.
type PerformanceReport struct {
	Providers      map[string]ProviderStats `json:"providers"`
	Insights       Insights                 `json:"insights"`
	DetailedExport []PerformanceRecord      `json:"detailed_export"`
}

// PerformanceInsightsReport returns the tracker's full view.
func (o *Orchestrator) PerformanceInsightsReport() PerformanceReport {
	return PerformanceReport{
		Providers:      o.tracker.Stats(),
		Insights:       o.tracker.Insights(),
		DetailedExport: o.tracker.History(),
	}
}

// Mode returns the configured operating mode.
func (o *Orchestrator) Mode() Mode { return o.config.Mode() }

// SetMode switches the operating mode.
func (o *Orchestrator) SetMode(m Mode) error { return o.config.SetMode(m) }
