// Package client talks to the todo HTTP API and keeps a local copy of the
// list in sync with it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"prism-todo/domain"
)

// DefaultBaseURL is used when no API URL is configured.
const DefaultBaseURL = "http://localhost:5000"

// APIError is a non-2xx answer from the API. Message holds the envelope's
// error text and may be empty.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return e.Message
}

// Is reports 404 answers as domain.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.Status == http.StatusNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// Client wraps http.Client with helpers for the todo endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a new Client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// List returns every todo, newest first.
func (c *Client) List(ctx context.Context) ([]domain.Todo, error) {
	var todos []domain.Todo
	if _, err := c.do(ctx, http.MethodGet, "/api/todos", nil, &todos); err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []domain.Todo{}
	}
	return todos, nil
}

// Get fetches a single todo.
func (c *Client) Get(ctx context.Context, id string) (domain.Todo, error) {
	var todo domain.Todo
	_, err := c.do(ctx, http.MethodGet, todoPath(id), nil, &todo)
	return todo, err
}

// Create adds a todo and returns the stored record.
func (c *Client) Create(ctx context.Context, in domain.NewTodo) (domain.Todo, error) {
	var todo domain.Todo
	_, err := c.do(ctx, http.MethodPost, "/api/todos", in, &todo)
	return todo, err
}

// Update applies patch to the todo and returns the stored record.
func (c *Client) Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, error) {
	var todo domain.Todo
	_, err := c.do(ctx, http.MethodPut, todoPath(id), patch, &todo)
	return todo, err
}

// Delete removes the todo.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, todoPath(id), nil, nil)
	return err
}

// Health returns the API's status message.
func (c *Client) Health(ctx context.Context) (string, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

func todoPath(id string) string {
	return "/api/todos/" + id
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		buf, err := sonic.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	decodeErr := sonic.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = env.Error
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if !env.Success {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil {
		if len(env.Data) == 0 {
			return nil, errors.New("response has no data")
		}
		if err := sonic.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decoding data: %w", err)
		}
	}
	return &env, nil
}
