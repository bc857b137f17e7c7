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

const kagiBaseURL = "https://kagi.com/api/v0"

// Kagi is the Kagi Search API adapter.
type Kagi struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewKagi creates the adapter.
func NewKagi(apiKey, baseURL string) *Kagi {
	if baseURL == "" {
		baseURL = kagiBaseURL
	}
	return &Kagi{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

func (k *Kagi) Name() string { return "kagi" }

func (k *Kagi) Description() string {
	return "Kagi Search: ad-free search with strong technical and reference coverage"
}

type kagiSearchResponse struct {
	Data []struct {
		T       int    `json:"t"` // 0 = result, 1 = related searches
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"data"`
}

func (k *Kagi) Search(ctx context.Context, params orchestrator.SearchParams) ([]orchestrator.SearchResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("limit", strconv.Itoa(params.Limit))

	headers := map[string]string{"Authorization": "Bot " + k.apiKey}

	var resp kagiSearchResponse
	endpoint := k.baseURL + "/search?" + q.Encode()
	if err := doJSON(ctx, k.client, k.Name(), http.MethodGet, endpoint, headers, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]orchestrator.SearchResult, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.T != 0 {
			continue
		}
		results = append(results, orchestrator.SearchResult{
			Title:          r.Title,
			URL:            r.URL,
			Snippet:        r.Snippet,
			SourceProvider: k.Name(),
		})
	}
	return results, nil
}

// KagiFastGPT is the Kagi FastGPT adapter: a synthesized answer with
// references, exposed through the ai_response category.
type KagiFastGPT struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewKagiFastGPT creates the adapter.
func NewKagiFastGPT(apiKey, baseURL string) *KagiFastGPT {
	if baseURL == "" {
		baseURL = kagiBaseURL
	}
	return &KagiFastGPT{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

func (k *KagiFastGPT) Name() string { return "kagi_fastgpt" }

func (k *KagiFastGPT) Description() string {
	return "Kagi FastGPT: quick synthesized answers with cited references"
}

type kagiFastGPTResponse struct {
	Data struct {
		Output     string `json:"output"`
		References []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"references"`
	} `json:"data"`
}

func (k *KagiFastGPT) Search(ctx context.Context, params orchestrator.SearchParams) ([]orchestrator.SearchResult, error) {
	body := map[string]string{"query": params.Query}
	headers := map[string]string{"Authorization": "Bot " + k.apiKey}

	var resp kagiFastGPTResponse
	if err := doJSON(ctx, k.client, k.Name(), http.MethodPost, k.baseURL+"/fastgpt", headers, body, &resp); err != nil {
		return nil, err
	}

	// The synthesized answer leads; references follow as plain results.
	results := make([]orchestrator.SearchResult, 0, len(resp.Data.References)+1)
	if resp.Data.Output != "" {
		results = append(results, orchestrator.SearchResult{
			Title:          "FastGPT Answer",
			Snippet:        resp.Data.Output,
			SourceProvider: k.Name(),
		})
	}
	for _, ref := range resp.Data.References {
		results = append(results, orchestrator.SearchResult{
			Title:          ref.Title,
			URL:            ref.URL,
			Snippet:        ref.Snippet,
			SourceProvider: k.Name(),
		})
	}
	return results, nil
}
