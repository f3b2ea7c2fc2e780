// Package lessonplan fetches lesson plans from the content service.
package lessonplan

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"tutor-server/services/voice-api/internal/domain/lesson"
)

// Client implements lesson.PlanSource against the content service's REST
// API.
type Client struct {
	client  *resty.Client
	baseURL string
}

// Config holds the content service connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a lesson-plan client.
func NewClient(cfg Config) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Client{client: client, baseURL: cfg.BaseURL}
}

// GetPlan fetches one lesson plan by ID.
func (c *Client) GetPlan(ctx context.Context, planID string) (*lesson.Plan, error) {
	var plan lesson.Plan

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("planID", planID).
		SetResult(&plan).
		Get(c.baseURL + "/v1/lesson-plans/{planID}")
	if err != nil {
		return nil, fmt.Errorf("fetch lesson plan %s: %w", planID, err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("lesson plan %s not found", planID)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch lesson plan %s: status %d", planID, resp.StatusCode())
	}
	return &plan, nil
}
