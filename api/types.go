package api

import (
	"context"

	"prism-todo/domain"
)

// Store abstracts persistence for handlers. Absence is reported through
// the found flag, never as an error.
type Store interface {
	Insert(ctx context.Context, in domain.NewTodo) (domain.Todo, error)
	List(ctx context.Context) ([]domain.Todo, error)
	Get(ctx context.Context, id string) (todo domain.Todo, found bool, err error)
	Update(ctx context.Context, id string, patch domain.TodoPatch) (todo domain.Todo, found bool, err error)
	Delete(ctx context.Context, id string) (todo domain.Todo, found bool, err error)
}

// EventPublisher delivers change events to downstream consumers.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []domain.TodoEvent) error
}
