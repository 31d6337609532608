// Package httpbackend implements the backend.Client contract over HTTP/JSON.
// It is a thin transport adapter: statuses, candidates, and errors all travel
// as domain types, and a 404 maps to backend.ErrNotFound.
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
)

// Client talks to a task-generation service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the service at baseURL (no trailing slash needed).
func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: trimSlash(baseURL),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "http_backend"),
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// errorBody is the wire shape of a non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// do issues one JSON request. in may be nil for bodiless requests; out may be
// nil when the response body is irrelevant.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, backend.ErrNotFound)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&eb); decodeErr == nil && eb.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// CreateAskingTask submits a text-to-query generation request.
func (c *Client) CreateAskingTask(ctx context.Context, input backend.AskingInput) (uuid.UUID, error) {
	var out struct {
		TaskID uuid.UUID `json:"taskId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/asking-tasks", input, &out); err != nil {
		return uuid.Nil, err
	}
	return out.TaskID, nil
}

// GetAskingTask fetches the current state of an asking task.
func (c *Client) GetAskingTask(ctx context.Context, taskID uuid.UUID) (domain.AskingTask, error) {
	var out domain.AskingTask
	if err := c.do(ctx, http.MethodGet, "/api/asking-tasks/"+taskID.String(), nil, &out); err != nil {
		return domain.AskingTask{}, err
	}
	return out, nil
}

// CancelAskingTask asks the service to stop an in-flight asking task.
func (c *Client) CancelAskingTask(ctx context.Context, taskID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/asking-tasks/"+taskID.String(), nil, nil)
}

// CreateThread creates a new conversation thread.
func (c *Client) CreateThread(ctx context.Context, input backend.ThreadInput) (domain.Thread, error) {
	var out domain.Thread
	if err := c.do(ctx, http.MethodPost, "/api/threads", input, &out); err != nil {
		return domain.Thread{}, err
	}
	return out, nil
}

// CreateThreadResponse creates a new response entry in a thread.
func (c *Client) CreateThreadResponse(ctx context.Context, threadID uuid.UUID, input backend.ResponseInput) (domain.Response, error) {
	var out domain.Response
	if err := c.do(ctx, http.MethodPost, "/api/threads/"+threadID.String()+"/responses", input, &out); err != nil {
		return domain.Response{}, err
	}
	return out, nil
}

// GetThreadResponse fetches the current state of a response by ID.
func (c *Client) GetThreadResponse(ctx context.Context, responseID uuid.UUID) (domain.Response, error) {
	var out domain.Response
	if err := c.do(ctx, http.MethodGet, "/api/responses/"+responseID.String(), nil, &out); err != nil {
		return domain.Response{}, err
	}
	return out, nil
}

// GenerateThreadRecommendations triggers recommendation generation for a thread.
func (c *Client) GenerateThreadRecommendations(ctx context.Context, threadID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/threads/"+threadID.String()+"/recommendations", nil, nil)
}

// GetThreadRecommendations fetches the thread-scoped recommendation state.
func (c *Client) GetThreadRecommendations(ctx context.Context, threadID uuid.UUID) (domain.RecommendationTask, error) {
	var out domain.RecommendationTask
	if err := c.do(ctx, http.MethodGet, "/api/threads/"+threadID.String()+"/recommendations", nil, &out); err != nil {
		return domain.RecommendationTask{}, err
	}
	return out, nil
}

// GenerateProjectRecommendations triggers project-wide recommendation generation.
func (c *Client) GenerateProjectRecommendations(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/recommendations", nil, nil)
}

// GetProjectRecommendations fetches the project-scoped recommendation state.
func (c *Client) GetProjectRecommendations(ctx context.Context) (domain.RecommendationTask, error) {
	var out domain.RecommendationTask
	if err := c.do(ctx, http.MethodGet, "/api/recommendations", nil, &out); err != nil {
		return domain.RecommendationTask{}, err
	}
	return out, nil
}

var _ backend.Client = (*Client)(nil)
