// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package providers

import (
	"context"
	"net/http"

	"axonflow/omnisearch/orchestrator"
)

const (
	perplexityBaseURL = "https://api.perplexity.ai"
	perplexityModel   = "sonar"
)

// Perplexity is the Perplexity Sonar adapter: an AI answer grounded in
// live web search, exposed through the ai_response category.
type Perplexity struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewPerplexity creates the adapter.
func NewPerplexity(apiKey, baseURL string) *Perplexity {
	if baseURL == "" {
		baseURL = perplexityBaseURL
	}
	return &Perplexity{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

func (p *Perplexity) Name() string { return "perplexity" }

func (p *Perplexity) Description() string {
	return "Perplexity Sonar: AI answers grounded in real-time web search with citations"
}

type perplexityRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (p *Perplexity) Search(ctx context.Context, params orchestrator.SearchParams) ([]orchestrator.SearchResult, error) {
	req := perplexityRequest{Model: perplexityModel}
	req.Messages = append(req.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: params.Query})

	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}

	var resp perplexityResponse
	if err := doJSON(ctx, p.client, p.Name(), http.MethodPost, p.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, orchestrator.NewSearchError(p.Name(), orchestrator.ErrAPI, "empty completion response")
	}

	results := []orchestrator.SearchResult{{
		Title:          "Perplexity Answer",
		Snippet:        resp.Choices[0].Message.Content,
		SourceProvider: p.Name(),
	}}
	for _, citation := range resp.Citations {
		results = append(results, orchestrator.SearchResult{
			Title:          citation,
			URL:            citation,
			SourceProvider: p.Name(),
		})
	}
	return results, nil
}
