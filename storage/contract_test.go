package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"prism-todo/domain"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

// Now returns the current instant and advances by one second.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

// runStoreContract exercises the behaviour every todo store must share.
func runStoreContract(t *testing.T, open func(t *testing.T, clock *testClock) backend) {
	t.Run("insert then get", func(t *testing.T) {
		s := open(t, newTestClock())
		ctx := context.Background()

		created, err := s.Insert(ctx, domain.NewTodo{Title: "Buy milk", Description: "2 litres"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if created.ID == "" {
			t.Fatalf("expected id to be assigned")
		}
		if created.Completed {
			t.Fatalf("new todo must not be completed")
		}
		if !created.CreatedAt.Equal(created.UpdatedAt) {
			t.Fatalf("expected createdAt == updatedAt")
		}

		got, found, err := s.Get(ctx, created.ID)
		if err != nil || !found {
			t.Fatalf("get: found=%v err=%v", found, err)
		}
		if got.Title != "Buy milk" || got.Description != "2 litres" || got.Completed {
			t.Fatalf("unexpected todo: %#v", got)
		}
		if !got.CreatedAt.Equal(created.CreatedAt) || !got.UpdatedAt.Equal(created.UpdatedAt) {
			t.Fatalf("timestamps did not round-trip: %#v vs %#v", got, created)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		s := open(t, newTestClock())
		ctx := context.Background()

		var ids []string
		for i := 0; i < 5; i++ {
			todo, err := s.Insert(ctx, domain.NewTodo{Title: fmt.Sprintf("todo %d", i)})
			if err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
			ids = append(ids, todo.ID)
		}

		todos, err := s.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(todos) != len(ids) {
			t.Fatalf("expected %d todos, got %d", len(ids), len(todos))
		}
		for i, todo := range todos {
			if want := ids[len(ids)-1-i]; todo.ID != want {
				t.Fatalf("position %d: expected %s, got %s", i, want, todo.ID)
			}
		}
	})

	t.Run("list empty", func(t *testing.T) {
		s := open(t, newTestClock())
		todos, err := s.List(context.Background())
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if todos == nil || len(todos) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", todos)
		}
	})

	t.Run("update merges supplied fields", func(t *testing.T) {
		s := open(t, newTestClock())
		ctx := context.Background()
		created, err := s.Insert(ctx, domain.NewTodo{Title: "Buy milk", Description: "2 litres"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		done := true
		updated, found, err := s.Update(ctx, created.ID, domain.TodoPatch{Completed: &done})
		if err != nil || !found {
			t.Fatalf("update: found=%v err=%v", found, err)
		}
		if !updated.Completed || updated.Title != "Buy milk" || updated.Description != "2 litres" {
			t.Fatalf("unexpected update result: %#v", updated)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Fatalf("createdAt changed")
		}
		if !updated.UpdatedAt.After(created.UpdatedAt) {
			t.Fatalf("updatedAt not refreshed: %v <= %v", updated.UpdatedAt, created.UpdatedAt)
		}

		stored, _, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !stored.Completed || stored.Title != "Buy milk" {
			t.Fatalf("update not persisted: %#v", stored)
		}
	})

	t.Run("delete removes permanently", func(t *testing.T) {
		s := open(t, newTestClock())
		ctx := context.Background()
		created, err := s.Insert(ctx, domain.NewTodo{Title: "Temp"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		deleted, found, err := s.Delete(ctx, created.ID)
		if err != nil || !found {
			t.Fatalf("delete: found=%v err=%v", found, err)
		}
		if deleted.ID != created.ID {
			t.Fatalf("unexpected deleted todo: %#v", deleted)
		}
		if _, found, err := s.Get(ctx, created.ID); err != nil || found {
			t.Fatalf("expected todo to be gone, found=%v err=%v", found, err)
		}
		if _, found, err := s.Delete(ctx, created.ID); err != nil || found {
			t.Fatalf("second delete should report absence, found=%v err=%v", found, err)
		}
	})

	t.Run("unknown id is absent", func(t *testing.T) {
		s := open(t, newTestClock())
		ctx := context.Background()
		const id = "6f1c2b9e-6d5c-4a7e-9d1e-3b9f2f0a1c11"
		title := "x"

		if _, found, err := s.Get(ctx, id); err != nil || found {
			t.Fatalf("get: found=%v err=%v", found, err)
		}
		if _, found, err := s.Update(ctx, id, domain.TodoPatch{Title: &title}); err != nil || found {
			t.Fatalf("update: found=%v err=%v", found, err)
		}
		if _, found, err := s.Delete(ctx, id); err != nil || found {
			t.Fatalf("delete: found=%v err=%v", found, err)
		}
	})

	t.Run("malformed id is an error", func(t *testing.T) {
		s := open(t, newTestClock())
		if _, _, err := s.Get(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected invalid id error, got %v", err)
		}
	})
}
