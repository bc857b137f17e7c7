// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package providers

import (
	"context"
	"net/http"

	"axonflow/omnisearch/orchestrator"
)

const exaBaseURL = "https://api.exa.ai"

// Exa is the Exa neural search adapter.
type Exa struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewExa creates the adapter.
func NewExa(apiKey, baseURL string) *Exa {
	if baseURL == "" {
		baseURL = exaBaseURL
	}
	return &Exa{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

func (e *Exa) Name() string { return "exa" }

func (e *Exa) Description() string {
	return "Exa: neural search tuned for academic papers and technical content"
}

type exaRequest struct {
	Query          string   `json:"query"`
	NumResults     int      `json:"numResults"`
	IncludeDomains []string `json:"includeDomains,omitempty"`
	ExcludeDomains []string `json:"excludeDomains,omitempty"`
	Contents       struct {
		Text bool `json:"text"`
	} `json:"contents"`
}

type exaResponse struct {
	Results []struct {
		Title string  `json:"title"`
		URL   string  `json:"url"`
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func (e *Exa) Search(ctx context.Context, params orchestrator.SearchParams) ([]orchestrator.SearchResult, error) {
	req := exaRequest{
		Query:          params.Query,
		NumResults:     params.Limit,
		IncludeDomains: params.IncludeDomains,
		ExcludeDomains: params.ExcludeDomains,
	}
	req.Contents.Text = true

	headers := map[string]string{"x-api-key": e.apiKey}

	var resp exaResponse
	if err := doJSON(ctx, e.client, e.Name(), http.MethodPost, e.baseURL+"/search", headers, req, &resp); err != nil {
		return nil, err
	}

	results := make([]orchestrator.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		snippet := r.Text
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		results = append(results, orchestrator.SearchResult{
			Title:          r.Title,
			URL:            r.URL,
			Snippet:        snippet,
			Score:          r.Score,
			SourceProvider: e.Name(),
		})
	}
	return results, nil
}
