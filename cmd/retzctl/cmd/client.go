package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"retz/pkg/api"
)

// Client handles API calls to the Retz controller.
type Client struct {
	BaseURL    string
	KeyID      string
	Secret     string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and credentials.
func NewClient(baseURL, keyID, secret string) *Client {
	return &Client{
		BaseURL: baseURL,
		KeyID:   keyID,
		Secret:  secret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.KeyID != "" {
		req.SetBasicAuth(c.KeyID, c.Secret)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ScheduleJob sends POST /jobs.
func (c *Client) ScheduleJob(req api.ScheduleJobRequest) (*api.ScheduleJobResponse, error) {
	var resp api.ScheduleJobResponse
	if err := c.do(http.MethodPost, "/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob sends GET /jobs/{id}.
func (c *Client) GetJob(id string) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(http.MethodGet, "/jobs/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs sends GET /jobs?state=...
func (c *Client) ListJobs(state, tag string) (*api.ListJobsResponse, error) {
	q := url.Values{}
	q.Set("state", state)
	if tag != "" {
		q.Set("tag", tag)
	}
	var resp api.ListJobsResponse
	if err := c.do(http.MethodGet, "/jobs?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// KillJob sends POST /jobs/{id}/kill.
func (c *Client) KillJob(id string) (*api.KillJobResponse, error) {
	var resp api.KillJobResponse
	if err := c.do(http.MethodPost, "/jobs/"+id+"/kill", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadApplication sends POST /applications.
func (c *Client) LoadApplication(req api.LoadApplicationRequest) (*api.ApplicationResponse, error) {
	var resp api.ApplicationResponse
	if err := c.do(http.MethodPost, "/applications", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListApplications sends GET /applications.
func (c *Client) ListApplications() ([]api.ApplicationResponse, error) {
	var resp []api.ApplicationResponse
	if err := c.do(http.MethodGet, "/applications", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Status sends GET /status.
func (c *Client) Status() (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(http.MethodGet, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
