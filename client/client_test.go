package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism-todo/api"
	"prism-todo/domain"
	"prism-todo/storage"
)

func newTestAPI(t *testing.T) *Client {
	t.Helper()
	store, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, _ := test.NewNullLogger()
	e := echo.New()
	a := api.Register(e, store, nil, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return New(srv.URL + "/")
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()

	msg, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "API is running", msg)

	created, err := c.Create(ctx, domain.NewTodo{Title: "Buy milk"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Buy milk", created.Title)
	assert.Equal(t, "", created.Description)
	assert.False(t, created.Completed)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	got, err := c.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	completed := true
	updated, err := c.Update(ctx, created.ID, domain.TodoPatch{Completed: &completed})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Buy milk", updated.Title)

	todos, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 1)

	require.NoError(t, c.Delete(ctx, created.ID))

	_, err = c.Get(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Todo not found", apiErr.Message)
}

func TestClientListEmpty(t *testing.T) {
	c := newTestAPI(t)

	todos, err := c.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, todos)
	assert.Empty(t, todos)
}

func TestClientValidationError(t *testing.T) {
	c := newTestAPI(t)

	_, err := c.Create(context.Background(), domain.NewTodo{Description: "no title"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Title is required", apiErr.Message)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestClientNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).List(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Message)
	assert.Equal(t, "unexpected status 502", apiErr.Error())
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).List(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestNewDefaultsBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("").BaseURL)
	assert.Equal(t, "http://api.local", New("http://api.local///").BaseURL)
}
