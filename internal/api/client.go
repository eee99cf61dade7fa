package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitehost/internal/faults"
	"sitehost/internal/workspace"
)

// Client talks to a running daemon's control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Body.Error)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Body.Kind != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", msg, e.Body.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
}

// Unwrap exposes the failure class so callers can use errors.Is with the
// faults markers.
func (e *Error) Unwrap() error {
	if e.Body.Kind == "" {
		return nil
	}
	return faults.New(faults.Kind(e.Body.Kind), e.Body.Error, nil)
}

// Deploy uploads files and returns the new project.
func (c *Client) Deploy(ctx context.Context, files []workspace.File) (*DeployResponse, error) {
	var resp DeployResponse
	if err := c.do(ctx, http.MethodPost, "/api/projects", DeployRequest{Files: files}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches one project.
func (c *Client) Status(ctx context.Context, id string) (*Project, error) {
	var resp Project
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id)+"/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List fetches every project.
func (c *Client) List(ctx context.Context) ([]Project, error) {
	var resp ProjectListResponse
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// Teardown removes one project.
func (c *Client) Teardown(ctx context.Context, id string) error {
	var resp TeardownResponse
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, &resp)
}

// Health fetches daemon health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, &apiErr.Body); jsonErr != nil {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsUnreachable reports whether err means no daemon answered at all.
func IsUnreachable(err error) bool {
	var apiErr *Error
	return err != nil && !errors.As(err, &apiErr) && !errors.Is(err, context.Canceled)
}
