package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// HTTPBackend talks to an APNS-style push provider API over HTTP.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend creates a push backend client for the given provider API.
func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) CreateOrReuseEndpoint(ctx context.Context, token string) (string, error) {
	body, _ := json.Marshal(map[string]string{"token": token})
	resp, err := b.do(ctx, http.MethodPost, "/v1/endpoints", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "create endpoint"); err != nil {
		return "", err
	}

	var result struct {
		EndpointRef string `json:"endpoint_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode create endpoint response: %w", err)
	}
	if result.EndpointRef == "" {
		return "", fmt.Errorf("create endpoint response missing endpoint_ref")
	}
	return result.EndpointRef, nil
}

func (b *HTTPBackend) UpdateEndpoint(ctx context.Context, endpointRef, token string) error {
	body, _ := json.Marshal(map[string]string{"token": token})
	resp, err := b.do(ctx, http.MethodPut, "/v1/endpoints/"+endpointRef, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.NewNotFoundError("endpoint", endpointRef)
	}
	return checkStatus(resp, "update endpoint")
}

func (b *HTTPBackend) DeleteEndpoint(ctx context.Context, endpointRef string) error {
	resp, err := b.do(ctx, http.MethodDelete, "/v1/endpoints/"+endpointRef, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Deleting an already-deleted endpoint succeeds silently.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp, "delete endpoint")
}

func (b *HTTPBackend) GetEndpointAttributes(ctx context.Context, endpointRef string) (*EndpointAttributes, error) {
	resp, err := b.do(ctx, http.MethodGet, "/v1/endpoints/"+endpointRef, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, model.NewNotFoundError("endpoint", endpointRef)
	}
	if err := checkStatus(resp, "get endpoint attributes"); err != nil {
		return nil, err
	}

	var attrs EndpointAttributes
	if err := json.NewDecoder(resp.Body).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("decode endpoint attributes: %w", err)
	}
	return &attrs, nil
}

func (b *HTTPBackend) PublishToEndpoint(ctx context.Context, endpointRef string, payload []byte) error {
	resp, err := b.do(ctx, http.MethodPost, "/v1/endpoints/"+endpointRef+"/publish", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.NewNotFoundError("endpoint", endpointRef)
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return model.NewValidationError("push provider rejected payload as too large")
	}
	return checkStatus(resp, "publish to endpoint")
}

func (b *HTTPBackend) Health(ctx context.Context) (*PlatformHealth, error) {
	resp, err := b.do(ctx, http.MethodGet, "/v1/platform", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "platform health"); err != nil {
		return nil, err
	}

	var health PlatformHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode platform health: %w", err)
	}
	return &health, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, model.NewTransientError("push", err)
	}
	return resp, nil
}

// checkStatus maps non-2xx responses to the error taxonomy: 5xx is
// transient, everything else surfaces as-is.
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("%s: push provider returned status %d", op, resp.StatusCode)
	if resp.StatusCode >= 500 {
		return model.NewTransientError("push", err)
	}
	return err
}

var _ Backend = (*HTTPBackend)(nil)
