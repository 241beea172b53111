package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/parley/internal/domain"
)

// HTTPResponder calls a remote respond endpoint over HTTP JSON.
type HTTPResponder struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPResponder creates a responder for the given endpoint. A
// non-positive timeout defaults to 60 seconds.
func NewHTTPResponder(endpoint, apiKey string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPResponder{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type respondRequest struct {
	Message string                `json:"message"`
	History []domain.HistoryEntry `json:"history"`
}

type respondResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Send posts the utterance and history to the respond endpoint.
func (r *HTTPResponder) Send(ctx context.Context, text string, history []domain.HistoryEntry) (*Outcome, error) {
	payload, err := json.Marshal(respondRequest{Message: text, History: history})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("respond endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var result respondResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &Outcome{Success: result.Success, Message: result.Message}, nil
}
