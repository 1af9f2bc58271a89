package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/veranemoloko/retro-installer/internal/domain"
)

const requestTimeout = 30 * time.Second

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Install(ctx context.Context, req domain.CreateTaskRequest) (domain.TaskResponse, error) {
	var task domain.TaskResponse
	err := c.do(ctx, http.MethodPost, "/tasks", req, &task)
	return task, err
}

func (c *apiClient) List(ctx context.Context, active bool) ([]domain.TaskResponse, error) {
	path := "/tasks"
	if active {
		path += "?active=true"
	}
	var tasks []domain.TaskResponse
	err := c.do(ctx, http.MethodGet, path, nil, &tasks)
	return tasks, err
}

func (c *apiClient) Show(ctx context.Context, id string) (domain.TaskResponse, error) {
	var task domain.TaskResponse
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &task)
	return task, err
}

func (c *apiClient) Cancel(ctx context.Context, id string) (domain.TaskResponse, error) {
	var task domain.TaskResponse
	err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, &task)
	return task, err
}

func (c *apiClient) Clear(ctx context.Context) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(ctx, http.MethodPost, "/tasks/clear", nil, &out)
	return out.Cleared, err
}

func (c *apiClient) Consoles(ctx context.Context) ([]domain.ConsoleResponse, error) {
	var consoles []domain.ConsoleResponse
	err := c.do(ctx, http.MethodGet, "/consoles", nil, &consoles)
	return consoles, err
}
