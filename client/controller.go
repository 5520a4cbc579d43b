package client

import (
	"context"
	"errors"
	"sync"

	"prism-todo/domain"
)

// TodoAPI is the subset of Client used by the Controller.
type TodoAPI interface {
	List(ctx context.Context) ([]domain.Todo, error)
	Create(ctx context.Context, in domain.NewTodo) (domain.Todo, error)
	Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, error)
	Delete(ctx context.Context, id string) error
}

// State is the controller's view of the list. It is never the source of
// truth; every change comes from a server response.
type State struct {
	Todos   []domain.Todo
	Loading bool
	Error   string
}

// Stats counts completed and pending todos.
func (s State) Stats() (done, pending int) {
	for _, t := range s.Todos {
		if t.Completed {
			done++
		} else {
			pending++
		}
	}
	return done, pending
}

// Controller holds the local todo list and reconciles it with the API.
// A mutation on an id supersedes any earlier request on that id still in
// flight; the older response is discarded when it arrives. A successful
// delete is never superseded.
type Controller struct {
	api TodoAPI

	mu         sync.Mutex
	state      State
	refreshGen uint64
	seq        uint64
	gens       map[string]uint64
	onChange   func(State)
}

// NewController creates a controller with an empty list.
func NewController(api TodoAPI) *Controller {
	if api == nil {
		panic("todo api is required")
	}
	return &Controller{
		api:   api,
		state: State{Todos: []domain.Todo{}},
		gens:  map[string]uint64{},
	}
}

// OnChange registers fn to be called with a snapshot after every state
// transition. fn runs on the goroutine that caused the change.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	s.Todos = append([]domain.Todo(nil), c.state.Todos...)
	return s
}

// Refresh replaces the local list with the server's.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshGen++
	gen := c.refreshGen
	c.state.Loading = true
	c.mu.Unlock()
	c.notify()

	todos, err := c.api.List(ctx)

	c.mu.Lock()
	if gen != c.refreshGen {
		c.mu.Unlock()
		return err
	}
	c.state.Loading = false
	if err != nil {
		c.state.Error = describe(err, "Failed to fetch todos")
	} else {
		c.state.Todos = todos
		c.state.Error = ""
	}
	c.mu.Unlock()
	c.notify()
	return err
}

// Create adds a todo and prepends the server's record.
func (c *Controller) Create(ctx context.Context, title, description string) (domain.Todo, error) {
	todo, err := c.api.Create(ctx, domain.NewTodo{Title: title, Description: description})

	c.mu.Lock()
	if err != nil {
		c.state.Error = describe(err, "Failed to create todo")
	} else {
		c.state.Todos = append([]domain.Todo{todo}, c.state.Todos...)
		c.state.Error = ""
	}
	c.mu.Unlock()
	c.notify()
	return todo, err
}

// Update sends patch and replaces the local record with the server's.
func (c *Controller) Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, error) {
	gen := c.begin(id)
	todo, err := c.api.Update(ctx, id, patch)

	c.mu.Lock()
	if !c.current(id, gen) {
		c.mu.Unlock()
		return todo, err
	}
	if err != nil {
		c.state.Error = describe(err, "Failed to update todo")
	} else {
		for i := range c.state.Todos {
			if c.state.Todos[i].ID == id {
				c.state.Todos[i] = todo
				break
			}
		}
		c.state.Error = ""
	}
	c.mu.Unlock()
	c.notify()
	return todo, err
}

// Toggle flips the completed flag of the local record with id.
func (c *Controller) Toggle(ctx context.Context, id string) (domain.Todo, error) {
	var completed, ok bool
	c.mu.Lock()
	for _, t := range c.state.Todos {
		if t.ID == id {
			completed, ok = !t.Completed, true
			break
		}
	}
	c.mu.Unlock()
	if !ok {
		return domain.Todo{}, domain.ErrNotFound
	}
	return c.Update(ctx, id, domain.TodoPatch{Completed: &completed})
}

// Delete removes the todo and drops the local record.
func (c *Controller) Delete(ctx context.Context, id string) error {
	gen := c.begin(id)
	err := c.api.Delete(ctx, id)

	c.mu.Lock()
	if err != nil {
		if !c.current(id, gen) {
			c.mu.Unlock()
			return err
		}
		c.state.Error = describe(err, "Failed to delete todo")
	} else {
		// A completed delete wins over later intents on the same id; any
		// response still in flight for it is discarded.
		c.seq++
		c.gens[id] = c.seq
		todos := make([]domain.Todo, 0, len(c.state.Todos))
		for _, t := range c.state.Todos {
			if t.ID != id {
				todos = append(todos, t)
			}
		}
		c.state.Todos = todos
		c.state.Error = ""
	}
	c.mu.Unlock()
	c.notify()
	return err
}

// ClearError drops the last error message.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.state.Error = ""
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) begin(id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.gens[id] = c.seq
	return c.seq
}

// current must be called with mu held. It forgets the id once its newest
// request has answered.
func (c *Controller) current(id string, gen uint64) bool {
	if c.gens[id] != gen {
		return false
	}
	delete(c.gens, id)
	return true
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	s := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// describe turns err into the text shown to the user.
func describe(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	return "Network error: " + err.Error()
}
