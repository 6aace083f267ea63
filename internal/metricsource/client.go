// Package metricsource implements the read-only client for the campaign
// metrics query service. The engine treats every failure here as "metrics
// unavailable" for that evaluation, never as a hard error.
package metricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/config"
	"github.com/ignite/campaign-autopilot/internal/pkg/httpretry"
)

// Client queries campaign metrics over HTTP with retry on transient errors.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// NewClient creates a metrics client from config.
func NewClient(cfg config.MetricSourceConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

type metricsResponse struct {
	CampaignID string             `json:"campaign_id"`
	Metrics    map[string]float64 `json:"metrics"`
}

// GetMetrics returns the current metrics snapshot for a campaign. The
// snapshot may be partial; callers treat absent keys as unavailable.
func (c *Client) GetMetrics(ctx context.Context, campaignID uuid.UUID) (map[string]float64, error) {
	url := fmt.Sprintf("%s/campaigns/%s/metrics", c.baseURL, campaignID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metric source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("metric source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode metrics response: %w", err)
	}
	return out.Metrics, nil
}
