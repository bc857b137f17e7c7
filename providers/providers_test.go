// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/omnisearch/orchestrator"
)

func TestTavily_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.APIKey)
		assert.Equal(t, "capital of france", req.Query)
		assert.Equal(t, 10, req.MaxResults)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"title": "Paris", "url": "https://example.com/paris", "content": "Paris is the capital", "score": 0.97},
			},
		})
	}))
	defer srv.Close()

	p := NewTavily("test-key", srv.URL)
	results, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "capital of france", Limit: 10})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Paris", results[0].Title)
	assert.Equal(t, "tavily", results[0].SourceProvider)
	assert.Equal(t, 0.97, results[0].Score)
}

func TestTavily_RateLimitClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewTavily("test-key", srv.URL)
	_, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "q", Limit: 10})

	require.Error(t, err)
	assert.Equal(t, orchestrator.ErrRateLimit, orchestrator.KindOf(err))

	var se *orchestrator.SearchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "tavily", se.Provider)
	assert.NotNil(t, se.ResetAt)
}

func TestBrave_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/res/v1/web/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "rust web frameworks", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"web": map[string]interface{}{
				"results": []map[string]interface{}{
					{"title": "Axum", "url": "https://example.com/axum", "description": "web framework"},
					{"title": "Actix", "url": "https://example.com/actix", "description": "actor framework"},
				},
			},
		})
	}))
	defer srv.Close()

	p := NewBrave("test-key", srv.URL)
	results, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "rust web frameworks", Limit: 5})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Axum", results[0].Title)
	assert.Equal(t, "brave", results[0].SourceProvider)
}

func TestBrave_AuthErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewBrave("bad-key", srv.URL)
	_, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "q", Limit: 5})

	require.Error(t, err)
	assert.Equal(t, orchestrator.ErrAuthentication, orchestrator.KindOf(err))
}

func TestKagi_SearchFiltersRelated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bot test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"t": 0, "title": "Result", "url": "https://example.com", "snippet": "snippet"},
				{"t": 1, "title": "related search"},
			},
		})
	}))
	defer srv.Close()

	p := NewKagi("test-key", srv.URL)
	results, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "q", Limit: 10})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Result", results[0].Title)
}

func TestKagiFastGPT_AnswerLeadsReferences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fastgpt", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"output": "Short answer.",
				"references": []map[string]interface{}{
					{"title": "Source", "url": "https://example.com/src", "snippet": "cited"},
				},
			},
		})
	}))
	defer srv.Close()

	p := NewKagiFastGPT("test-key", srv.URL)
	results, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "q", Limit: 10})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "FastGPT Answer", results[0].Title)
	assert.Equal(t, "Short answer.", results[0].Snippet)
	assert.Equal(t, "Source", results[1].Title)
}

func TestExa_PaymentRequiredClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	p := NewExa("test-key", srv.URL)
	_, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "q", Limit: 10})

	require.Error(t, err)
	assert.Equal(t, orchestrator.ErrCreditExhausted, orchestrator.KindOf(err))
}

func TestPerplexity_AnswerAndCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "Grounded answer."}},
			},
			"citations": []string{"https://example.com/cite"},
		})
	}))
	defer srv.Close()

	p := NewPerplexity("test-key", srv.URL)
	results, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "q", Limit: 10})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Grounded answer.", results[0].Snippet)
	assert.Equal(t, "https://example.com/cite", results[1].URL)
}

func TestPerplexity_EmptyChoicesIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	p := NewPerplexity("test-key", srv.URL)
	_, err := p.Search(context.Background(), orchestrator.SearchParams{Query: "q", Limit: 10})

	require.Error(t, err)
	assert.Equal(t, orchestrator.ErrAPI, orchestrator.KindOf(err))
}

func TestRegisterFromEnv(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "tk")
	t.Setenv("KAGI_API_KEY", "kk")
	t.Setenv("BRAVE_API_KEY", "")
	t.Setenv("EXA_API_KEY", "")
	t.Setenv("PERPLEXITY_API_KEY", "")

	registry := orchestrator.NewRegistry()
	require.NoError(t, RegisterFromEnv(registry))

	assert.Equal(t, []string{"kagi", "tavily"}, registry.ListByCategory(orchestrator.CategorySearch))
	// The Kagi key also enables FastGPT on the AI-response side.
	assert.Equal(t, []string{"kagi_fastgpt"}, registry.ListByCategory(orchestrator.CategoryAIResponse))
	assert.Equal(t, 3, registry.Count())
}
