// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package providers

import (
	"context"
	"net/http"

	"axonflow/omnisearch/orchestrator"
)

const tavilyBaseURL = "https://api.tavily.com"

// Tavily is the Tavily Search API adapter.
type Tavily struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTavily creates the adapter. An empty baseURL uses the production
// endpoint; tests point it at a local server.
func NewTavily(apiKey, baseURL string) *Tavily {
	if baseURL == "" {
		baseURL = tavilyBaseURL
	}
	return &Tavily{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

func (t *Tavily) Name() string { return "tavily" }

func (t *Tavily) Description() string {
	return "Tavily Search: factual web search optimized for AI agents, with source attribution"
}

type tavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, params orchestrator.SearchParams) ([]orchestrator.SearchResult, error) {
	req := tavilyRequest{
		APIKey:         t.apiKey,
		Query:          params.Query,
		MaxResults:     params.Limit,
		IncludeDomains: params.IncludeDomains,
		ExcludeDomains: params.ExcludeDomains,
	}

	var resp tavilyResponse
	if err := doJSON(ctx, t.client, t.Name(), http.MethodPost, t.baseURL+"/search", nil, req, &resp); err != nil {
		return nil, err
	}

	results := make([]orchestrator.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, orchestrator.SearchResult{
			Title:          r.Title,
			URL:            r.URL,
			Snippet:        r.Content,
			Score:          r.Score,
			SourceProvider: t.Name(),
		})
	}
	return results, nil
}
