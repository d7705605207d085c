package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// maxResponseSize bounds the inference response body.
const maxResponseSize = 1 * 1024 * 1024 // 1 MB

// InvokeParams tune a single inference call.
type InvokeParams struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// InferenceBackend is the external model-inference collaborator.
type InferenceBackend interface {
	// Invoke sends a prompt and returns the raw completion text.
	Invoke(ctx context.Context, prompt string, params InvokeParams) (string, error)
}

// HTTPBackend calls a completion-style HTTP inference API.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend creates an inference client for the given API.
func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type completionResponse struct {
	Completion string `json:"completion"`
	Error      string `json:"error,omitempty"`
}

func (b *HTTPBackend) Invoke(ctx context.Context, prompt string, params InvokeParams) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       params.Model,
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", model.NewTransientError("inference", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", model.NewTransientError("inference",
			fmt.Errorf("inference backend returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference backend returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", model.NewTransientError("inference", fmt.Errorf("read response: %w", err))
	}

	var result completionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("inference backend error: %s", result.Error)
	}
	return result.Completion, nil
}

var _ InferenceBackend = (*HTTPBackend)(nil)
