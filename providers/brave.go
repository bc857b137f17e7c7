// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"axonflow/omnisearch/orchestrator"
)

const braveBaseURL = "https://api.search.brave.com"

// Brave is the Brave Web Search API adapter.
type Brave struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewBrave creates the adapter.
func NewBrave(apiKey, baseURL string) *Brave {
	if baseURL == "" {
		baseURL = braveBaseURL
	}
	return &Brave{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Description() string {
	return "Brave Search: privacy-focused web search with an independent index"
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, params orchestrator.SearchParams) ([]orchestrator.SearchResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("count", strconv.Itoa(params.Limit))

	headers := map[string]string{"X-Subscription-Token": b.apiKey}

	var resp braveResponse
	endpoint := b.baseURL + "/res/v1/web/search?" + q.Encode()
	if err := doJSON(ctx, b.client, b.Name(), http.MethodGet, endpoint, headers, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]orchestrator.SearchResult, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		results = append(results, orchestrator.SearchResult{
			Title:          r.Title,
			URL:            r.URL,
			Snippet:        r.Description,
			SourceProvider: b.Name(),
		})
	}
	return results, nil
}
