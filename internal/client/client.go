// Package client provides an HTTP client for the trip-planner REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/plan"
)

// Client is an HTTP client for the trip-planner API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreatePlan submits a travel request.
func (c *Client) CreatePlan(ctx context.Context, req plan.Request) (*plan.Plan, error) {
	var p plan.Plan
	if err := c.send(ctx, http.MethodPost, "/api/plans", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns the caller's plans, newest first.
func (c *Client) ListPlans(ctx context.Context) ([]*plan.Plan, error) {
	var plans []*plan.Plan
	if err := c.send(ctx, http.MethodGet, "/api/plans", nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetPlan returns a plan.
func (c *Client) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	var p plan.Plan
	if err := c.send(ctx, http.MethodGet, "/api/plans/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Generate starts generation. The server answers once the plan is
// generating; poll PlanStatus for the result.
func (c *Client) Generate(ctx context.Context, id string) (*plan.Plan, error) {
	var p plan.Plan
	if err := c.send(ctx, http.MethodPost, "/api/plans/"+id+"/generate", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Regenerate replaces the plan's itinerary, honoring instructions.
func (c *Client) Regenerate(ctx context.Context, id, instructions string) (*plan.Plan, error) {
	body := map[string]string{"instructions": instructions}
	var p plan.Plan
	if err := c.send(ctx, http.MethodPost, "/api/plans/"+id+"/regenerate", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlanStatus returns the plan's generation status.
func (c *Client) PlanStatus(ctx context.Context, id string) (*job.StatusView, error) {
	var view job.StatusView
	if err := c.send(ctx, http.MethodGet, "/api/plans/"+id+"/status", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateDay replaces one day's activities and returns the updated itinerary.
func (c *Client) UpdateDay(ctx context.Context, id string, day int, activities []itinerary.Activity) (*itinerary.Itinerary, error) {
	body := map[string][]itinerary.Activity{"activities": activities}
	var it itinerary.Itinerary
	if err := c.send(ctx, http.MethodPut, fmt.Sprintf("/api/plans/%s/days/%d", id, day), body, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// DeletePlan removes a plan and its itinerary.
func (c *Client) DeletePlan(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/api/plans/"+id, nil, nil)
}

// send performs a request with an optional JSON body and decodes the response.
func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

// do executes an HTTP request with auth header and handles errors.
func (c *Client) do(req *http.Request, result any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// APIError is a non-2xx response from the API. Validation, not-found and
// conflict responses unwrap to the matching job sentinel.
type APIError struct {
	Status  int
	Message string

	kind error
	body bool
}

func (e *APIError) Error() string {
	switch {
	case e.kind != nil:
		return e.kind.Error() + ": " + e.Message
	case e.body:
		return e.Message
	}
	return "server error: " + e.Message
}

func (e *APIError) Unwrap() error { return e.kind }

// responseError maps API error responses onto the job sentinels so callers
// can branch on them with errors.Is.
func responseError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
		apiErr.body = true
	}

	switch status {
	case http.StatusBadRequest:
		apiErr.kind = job.ErrValidation
	case http.StatusNotFound:
		apiErr.kind = job.ErrNotFound
	case http.StatusConflict:
		apiErr.kind = job.ErrConflict
	}
	return apiErr
}
