// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"axonflow/omnisearch/orchestrator"
)

// defaultTimeout bounds a single HTTP exchange with a back-end. The
// orchestrator applies its own per-attempt deadline on top.
const defaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept for details.
const maxErrorBody = 2048

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// doJSON sends a request with a JSON body (nil for GET), decodes a
// 2xx response into out, and classifies everything else onto the
// error taxonomy.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return orchestrator.NewSearchError(provider, orchestrator.ErrInvalidInput, fmt.Sprintf("encode request: %v", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return orchestrator.NewSearchError(provider, orchestrator.ErrInvalidInput, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return orchestrator.WrapSearchError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return orchestrator.ClassifyStatus(provider, resp.StatusCode, string(raw), resp.Header.Get("Retry-After"), orchestrator.SystemClock())
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return orchestrator.NewSearchError(provider, orchestrator.ErrAPI, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}
