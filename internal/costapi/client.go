// Package costapi pulls cost-and-usage data from the external cost
// backend over its HTTP API.
package costapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// CostSource is the narrow interface the pipeline consumes cost data
// through.
type CostSource interface {
	// GetCosts returns the cost analysis for the given period.
	GetCosts(ctx context.Context, period model.Period) (*model.CostAnalysis, error)
}

// Client fetches cost analyses from a cost-and-usage HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a cost API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetCosts(ctx context.Context, period model.Period) (*model.CostAnalysis, error) {
	query := url.Values{}
	query.Set("start", period.Start.UTC().Format(time.RFC3339))
	query.Set("end", period.End.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/costs?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create cost request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, model.NewTransientError("costs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, model.NewTransientError("costs",
			fmt.Errorf("cost backend returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cost backend returned status %d", resp.StatusCode)
	}

	var analysis model.CostAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("decode cost response: %w", err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, fmt.Errorf("cost backend returned malformed analysis: %w", err)
	}
	return &analysis, nil
}

var _ CostSource = (*Client)(nil)
