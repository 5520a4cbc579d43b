package domain

import (
	"strings"
	"time"
)

// Todo is a single entry of the task list.
type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewTodo carries the fields accepted when creating a todo.
type NewTodo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TodoPatch is a partial update. Nil fields are left untouched.
type TodoPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p TodoPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}

// ValidateTitle is shared by create and update so a stored title is never blank.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Message: "Title is required"}
	}
	return nil
}

// Validate checks a create request.
func (n NewTodo) Validate() error {
	return ValidateTitle(n.Title)
}

// Validate checks the supplied fields of a patch.
func (p TodoPatch) Validate() error {
	if p.Title != nil {
		return ValidateTitle(*p.Title)
	}
	return nil
}

// Build materialises a new todo with store-assigned id and timestamp.
func (n NewTodo) Build(id string, now time.Time) Todo {
	return Todo{
		ID:          id,
		Title:       n.Title,
		Description: n.Description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply merges the patch into t and refreshes UpdatedAt.
func (p TodoPatch) Apply(t Todo, now time.Time) Todo {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	t.UpdatedAt = now
	return t
}
