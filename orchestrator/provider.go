// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Category groups providers by the kind of answer they produce.
type Category string

const (
	// CategorySearch is for classic web/result-list back-ends.
	CategorySearch Category = "search"

	// CategoryAIResponse is for synthesized AI-answer back-ends.
	CategoryAIResponse Category = "ai_response"
)

// SearchParams is the uniform request shape passed to every adapter.
type SearchParams struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// Normalize clamps the result limit into the supported 1..50 range.
func (p SearchParams) Normalize() SearchParams {
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.Limit > 50 {
		p.Limit = 50
	}
	return p
}

// SearchResult is the uniform result shape returned by every adapter.
type SearchResult struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Snippet        string  `json:"snippet"`
	Score          float64 `json:"score,omitempty"`
	SourceProvider string  `json:"source_provider"`
}

// Searcher is the capability every back-end adapter exposes. Errors
// returned from Search must be *SearchError values so the orchestrator
// can classify them.
type Searcher interface {
	// Name is the stable, lowercase provider identifier.
	Name() string

	// Description is a human-readable summary of the back-end.
	Description() string

	// Search executes the query. The context carries the per-attempt
	// deadline and caller cancellation.
	Search(ctx context.Context, params SearchParams) ([]SearchResult, error)
}

// Registry holds the finite set of configured adapters with their
// category metadata. Adapters without credentials are simply never
// registered. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]Searcher
	categories map[string]Category
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers:  make(map[string]Searcher),
		categories: make(map[string]Category),
	}
}

// Register adds an adapter under the given category.
func (r *Registry) Register(s Searcher, category Category) error {
	if s == nil {
		return fmt.Errorf("searcher cannot be nil")
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("searcher name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	r.providers[name] = s
	r.categories[name] = category
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Searcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.providers[name]
	return s, ok
}

// Has reports whether a provider is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// CategoryOf returns the category a provider was registered under.
func (r *Registry) CategoryOf(name string) (Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[name]
	return c, ok
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListByCategory returns registered provider names in a category, sorted.
func (r *Registry) ListByCategory(category Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, c := range r.categories {
		if c == category {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
