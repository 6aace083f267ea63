// Package campaignctl implements the client for the campaign control
// service, the system of record for campaign state and budgets. The engine
// applies rule actions through it and never mutates campaigns directly.
package campaignctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/config"
	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/pkg/httpretry"
)

// Client drives the campaign control API with retry on transient errors.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// NewClient creates a campaign control client from config.
func NewClient(cfg config.CampaignControlConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

// Get returns the campaign's current state and budget.
func (c *Client) Get(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error) {
	var out domain.Campaign
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/campaigns/%s", campaignID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pause pauses the campaign. Pausing an already-paused campaign is a no-op
// on the remote side.
func (c *Client) Pause(ctx context.Context, campaignID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/campaigns/%s/pause", campaignID), nil, nil)
}

// Resume resumes the campaign.
func (c *Client) Resume(ctx context.Context, campaignID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/campaigns/%s/resume", campaignID), nil, nil)
}

// SetBudget replaces the campaign's daily budget.
func (c *Client) SetBudget(ctx context.Context, campaignID uuid.UUID, dailyBudget float64) error {
	body := map[string]float64{"daily_budget": dailyBudget}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/campaigns/%s/budget", campaignID), body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("campaign control: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("campaign control returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
