package domain

import "time"

// Event types published after successful mutations.
const (
	EventTodoCreated = "todo-created"
	EventTodoUpdated = "todo-updated"
	EventTodoDeleted = "todo-deleted"
)

// TodoEvent describes a change to a todo. For deletions Todo holds the
// last stored state.
type TodoEvent struct {
	Type string    `json:"type"`
	Todo Todo      `json:"todo"`
	Time time.Time `json:"time"`
}

// NewTodoEvent stamps an event with the current time.
func NewTodoEvent(typ string, t Todo) TodoEvent {
	return TodoEvent{Type: typ, Todo: t, Time: time.Now().UTC()}
}
