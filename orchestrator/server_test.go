// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, searchers ...*fakeSearcher) (*Server, *testHarness) {
	t.Helper()
	h := newHarness(t, searchers...)
	return NewServer(h.orch, prometheus.NewRegistry()), h
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_SearchEndpoint(t *testing.T) {
	s, _ := newTestServer(t, succeeding("tavily"))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/search", map[string]interface{}{
		"query": "capital of france",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res UnifiedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "tavily", res.Provider)
	require.NotNil(t, res.QueryAnalysis)
}

func TestServer_SearchRequiresQuery(t *testing.T) {
	s, _ := newTestServer(t, succeeding("tavily"))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/search", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AISearchEndpoint(t *testing.T) {
	s, _ := newTestServer(t, succeeding("perplexity"))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/ai-search", map[string]interface{}{
		"query": "explain raft consensus",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var res UnifiedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "perplexity", res.Provider)
	assert.Nil(t, res.QueryAnalysis)
}

func TestServer_AnalyzeEndpoint(t *testing.T) {
	s, _ := newTestServer(t, succeeding("tavily"), succeeding("kagi"))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/analyze", map[string]interface{}{
		"query": "how to implement websocket authentication in node.js",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var report AnalysisReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, QueryTypeTechnical, report.Characteristics.QueryType)
	assert.Equal(t, "kagi", report.Recommendation.Provider)
	assert.Len(t, report.Scores, 2)
}

func TestServer_ProviderHealthEndpoint(t *testing.T) {
	s, h := newTestServer(t, succeeding("tavily"), succeeding("brave"))
	h.health.RecordFailure("brave", NewSearchError("brave", ErrRateLimit, "429"))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/providers/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Providers, 2)
	assert.Equal(t, []string{"tavily"}, report.AvailableSearch)
	assert.Empty(t, report.AvailableAIResponse)
}

func TestServer_ProviderConfigEndpoint(t *testing.T) {
	s, h := newTestServer(t, succeeding("tavily"), succeeding("brave"))
	h.health.RecordFailure("brave", NewSearchError("brave", ErrRateLimit, "429"))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/providers/config", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var report ConfigReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, []string{"tavily", "brave", "kagi", "exa"}, report.SearchOrder)
	// The configuration view carries the health block too.
	require.Len(t, report.ProviderHealth.Providers, 2)
	assert.Equal(t, []string{"tavily"}, report.ProviderHealth.AvailableSearch)
}

func TestServer_ResetEndpoint(t *testing.T) {
	s, h := newTestServer(t, succeeding("tavily"))
	h.health.RecordFailure("tavily", NewSearchError("tavily", ErrAuthentication, "bad key"))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/providers/tavily/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.health.IsAvailable("tavily"))

	rec = doRequest(t, s, http.MethodPost, "/api/v1/providers/unknown/reset", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ConfigureEndpoint(t *testing.T) {
	s, h := newTestServer(t, succeeding("tavily"), succeeding("brave"))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/providers/configure", map[string]interface{}{
		"search_order": []string{"brave", "tavily"},
		"enabled":      map[string]bool{"tavily": false},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"brave", "tavily"}, h.config.Order(CategorySearch))
	assert.False(t, h.config.IsEnabled("tavily"))

	rec = doRequest(t, s, http.MethodPost, "/api/v1/providers/configure", map[string]interface{}{
		"search_order": []string{"nonsense"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ModeEndpoints(t *testing.T) {
	s, _ := newTestServer(t, succeeding("tavily"))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"unified"}`, rec.Body.String())

	rec = doRequest(t, s, http.MethodPut, "/api/v1/mode", map[string]string{"mode": "direct"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"direct"}`, rec.Body.String())

	rec = doRequest(t, s, http.MethodPut, "/api/v1/mode", map[string]string{"mode": "turbo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PerformanceEndpoint(t *testing.T) {
	s, h := newTestServer(t, succeeding("tavily"))
	h.tracker.Record(record("tavily", QueryTypeFactual, true, 100, h.clock.Now()))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/performance", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var report PerformanceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Providers["tavily"].TotalRequests)
	assert.Equal(t, "tavily", report.Insights.BestOverall)
	require.Len(t, report.DetailedExport, 1)
	assert.Equal(t, "tavily", report.DetailedExport[0].Provider)
}

func TestServer_HealthCheck(t *testing.T) {
	s, _ := newTestServer(t, succeeding("tavily"))

	rec := doRequest(t, s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["providers_available"])
}

func TestServer_RequestIDPropagated(t *testing.T) {
	s, _ := newTestServer(t, succeeding("tavily"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}
