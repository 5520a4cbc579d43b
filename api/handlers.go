package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-todo/domain"
)

// API owns the background resources of the registered handlers.
type API struct {
	events *eventPool
}

// Register wires up all API routes on the provided Echo instance. publisher
// may be nil, in which case change events are dropped.
func Register(e *echo.Echo, store Store, publisher EventPublisher, logger *log.Logger) *API {
	if store == nil {
		panic("storage is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	a := &API{events: newEventPool(publisher, poolConfigFromEnv(), logger)}

	e.JSONSerializer = SonicJSONSerializer{}

	e.GET("/api/todos", listTodos(store, logger))
	e.GET("/api/todos/:id", getTodo(store, logger))
	e.POST("/api/todos", createTodo(store, a.events, logger))
	e.PUT("/api/todos/:id", updateTodo(store, a.events, logger))
	e.DELETE("/api/todos/:id", deleteTodo(store, a.events, logger))
	e.GET("/api/health", health())
	e.GET("/healthz", healthz())

	return a
}

// Shutdown drains pending change events.
func (a *API) Shutdown(ctx context.Context) error {
	return a.events.Close(ctx)
}

func health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, messageResponse{Success: true, Message: msgHealthy})
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func startRequest(c echo.Context, logger *log.Logger, route, operation string) (*requestMetrics, context.Context) {
	metrics, ctx := newRequestMetrics(c.Request().Context(), logger, route, operation)
	c.SetRequest(c.Request().WithContext(ctx))
	return metrics, ctx
}

func listTodos(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := startRequest(c, logger, "/api/todos", "list")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		todos, storeErr := store.List(ctx)
		metrics.ObserveStore(time.Since(fetchStart))
		if storeErr != nil {
			return internalError(c, metrics, storeErr)
		}
		if todos == nil {
			todos = []domain.Todo{}
		}
		metrics.SetTodosReturned(len(todos))
		return c.JSON(http.StatusOK, listResponse{Success: true, Count: len(todos), Data: todos})
	}
}

func getTodo(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := startRequest(c, logger, "/api/todos/:id", "get")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		id := c.Param("id")
		metrics.SetTodoID(id)

		fetchStart := time.Now()
		todo, found, storeErr := store.Get(ctx, id)
		metrics.ObserveStore(time.Since(fetchStart))
		if storeErr != nil {
			return internalError(c, metrics, storeErr)
		}
		if !found {
			return notFound(c, metrics)
		}
		return c.JSON(http.StatusOK, todoResponse{Success: true, Data: todo})
	}
}

func createTodo(store Store, events *eventPool, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := startRequest(c, logger, "/api/todos", "create")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		var in domain.NewTodo
		if decodeErr := decodeBody(c, &in); decodeErr != nil {
			return decodeFailure(c, metrics, decodeErr)
		}
		if validateErr := in.Validate(); validateErr != nil {
			return badRequest(c, metrics, "validation", validateErr.Error())
		}

		storeStart := time.Now()
		todo, storeErr := store.Insert(ctx, in)
		metrics.ObserveStore(time.Since(storeStart))
		if storeErr != nil {
			return internalError(c, metrics, storeErr)
		}
		metrics.SetTodoID(todo.ID)
		events.Publish(domain.NewTodoEvent(domain.EventTodoCreated, todo))
		return c.JSON(http.StatusCreated, todoResponse{Success: true, Data: todo})
	}
}

func updateTodo(store Store, events *eventPool, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := startRequest(c, logger, "/api/todos/:id", "update")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		id := c.Param("id")
		metrics.SetTodoID(id)

		var patch domain.TodoPatch
		if decodeErr := decodeBody(c, &patch); decodeErr != nil {
			return decodeFailure(c, metrics, decodeErr)
		}
		if validateErr := patch.Validate(); validateErr != nil {
			return badRequest(c, metrics, "validation", validateErr.Error())
		}

		storeStart := time.Now()
		todo, found, storeErr := store.Update(ctx, id, patch)
		metrics.ObserveStore(time.Since(storeStart))
		if storeErr != nil {
			return internalError(c, metrics, storeErr)
		}
		if !found {
			return notFound(c, metrics)
		}
		events.Publish(domain.NewTodoEvent(domain.EventTodoUpdated, todo))
		return c.JSON(http.StatusOK, todoResponse{Success: true, Data: todo})
	}
}

func deleteTodo(store Store, events *eventPool, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := startRequest(c, logger, "/api/todos/:id", "delete")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		id := c.Param("id")
		metrics.SetTodoID(id)

		storeStart := time.Now()
		todo, found, storeErr := store.Delete(ctx, id)
		metrics.ObserveStore(time.Since(storeStart))
		if storeErr != nil {
			return internalError(c, metrics, storeErr)
		}
		if !found {
			return notFound(c, metrics)
		}
		events.Publish(domain.NewTodoEvent(domain.EventTodoDeleted, todo))
		return c.JSON(http.StatusOK, messageResponse{Success: true, Message: msgDeleted})
	}
}

var errBodyTooLarge = errors.New("request body too large")

// decodeBody reads at most requestMaxSize bytes of JSON into out. An empty
// body leaves out untouched; a longer one is errBodyTooLarge.
func decodeBody(c echo.Context, out any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, requestMaxSize+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return err
	}
	if len(body) > requestMaxSize {
		return errBodyTooLarge
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return sonic.ConfigStd.Unmarshal(body, out)
}

func decodeFailure(c echo.Context, metrics *requestMetrics, err error) error {
	if errors.Is(err, errBodyTooLarge) {
		metrics.SetErrorStage("body_too_large")
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Success: false, Error: msgTooLarge})
	}
	return badRequest(c, metrics, "decode_body", msgInvalidBody)
}

func badRequest(c echo.Context, metrics *requestMetrics, stage, msg string) error {
	metrics.SetErrorStage(stage)
	return c.JSON(http.StatusBadRequest, errorResponse{Success: false, Error: msg})
}

func notFound(c echo.Context, metrics *requestMetrics) error {
	metrics.SetErrorStage("not_found")
	return c.JSON(http.StatusNotFound, errorResponse{Success: false, Error: msgNotFound})
}

func internalError(c echo.Context, metrics *requestMetrics, err error) error {
	stage := "storage"
	if errors.Is(err, domain.ErrInvalidID) {
		stage = "invalid_id"
	}
	metrics.Fail(stage, err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Success: false, Error: err.Error()})
}
