package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"prism-todo/domain"
)

// todoPartition is the single partition holding every todo entity.
const todoPartition = "todos"

type entityTable interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Storage keeps todos as entities of an Azure table.
type Storage struct {
	todoTable entityTable
	now       func() time.Time
	newID     func() string
}

// New creates a Storage instance from the given connection string.
func New(connStr, todosTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return newStorage(svc.NewClient(todosTable)), nil
}

func newStorage(table entityTable) *Storage {
	return &Storage{
		todoTable: table,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

type todoEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Completed    bool   `json:"Completed"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

func encodeTodoEntity(t domain.Todo) ([]byte, error) {
	return json.Marshal(todoEntity{
		PartitionKey: todoPartition,
		RowKey:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Completed:    t.Completed,
		CreatedAt:    formatTime(t.CreatedAt),
		UpdatedAt:    formatTime(t.UpdatedAt),
	})
}

func decodeTodoEntity(data []byte) (domain.Todo, error) {
	var ent todoEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Todo{}, err
	}
	created, err := parseTime(ent.CreatedAt)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("todo %s: createdAt: %w", ent.RowKey, err)
	}
	updated, err := parseTime(ent.UpdatedAt)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("todo %s: updatedAt: %w", ent.RowKey, err)
	}
	return domain.Todo{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Completed:   ent.Completed,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

// Insert stores a new todo with a fresh id and timestamps.
func (s *Storage) Insert(ctx context.Context, in domain.NewTodo) (domain.Todo, error) {
	todo := in.Build(s.newID(), s.now())
	payload, err := encodeTodoEntity(todo)
	if err != nil {
		return domain.Todo{}, err
	}
	if _, err := s.todoTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Todo{}, err
	}
	return todo, nil
}

// List returns every todo, most recently created first.
func (s *Storage) List(ctx context.Context) ([]domain.Todo, error) {
	filter := "PartitionKey eq '" + todoPartition + "'"
	pager := s.todoTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	todos := []domain.Todo{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			todo, err := decodeTodoEntity(e)
			if err != nil {
				return nil, err
			}
			todos = append(todos, todo)
		}
	}
	sortNewestFirst(todos)
	return todos, nil
}

// Get looks up a todo. found is false when no entity matches.
func (s *Storage) Get(ctx context.Context, id string) (domain.Todo, bool, error) {
	todo, _, found, err := s.getEntity(ctx, id)
	return todo, found, err
}

func (s *Storage) getEntity(ctx context.Context, id string) (domain.Todo, azcore.ETag, bool, error) {
	if err := checkID(id); err != nil {
		return domain.Todo{}, "", false, err
	}
	ent, err := s.todoTable.GetEntity(ctx, todoPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Todo{}, "", false, nil
		}
		return domain.Todo{}, "", false, err
	}
	todo, err := decodeTodoEntity(ent.Value)
	if err != nil {
		return domain.Todo{}, "", false, err
	}
	return todo, ent.ETag, true, nil
}

// maxWriteAttempts bounds the read-modify-write retries when another
// writer changes the entity between the read and the conditional write.
const maxWriteAttempts = 5

// Update merges the patch into the stored todo. The replace is conditional
// on the ETag that was read, so concurrent patches never overwrite each
// other.
func (s *Storage) Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, bool, error) {
	for attempt := 1; ; attempt++ {
		current, etag, found, err := s.getEntity(ctx, id)
		if err != nil || !found {
			return domain.Todo{}, found, err
		}
		updated := patch.Apply(current, s.now())
		payload, err := encodeTodoEntity(updated)
		if err != nil {
			return domain.Todo{}, false, err
		}
		_, err = s.todoTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		switch {
		case err == nil:
			return updated, true, nil
		case isNotFound(err):
			return domain.Todo{}, false, nil
		case isConflict(err) && attempt < maxWriteAttempts:
			continue
		case isConflict(err):
			return domain.Todo{}, false, fmt.Errorf("todo %s: %w", id, domain.ErrConflict)
		default:
			return domain.Todo{}, false, err
		}
	}
}

// Delete removes the todo and returns its last stored state.
func (s *Storage) Delete(ctx context.Context, id string) (domain.Todo, bool, error) {
	for attempt := 1; ; attempt++ {
		current, etag, found, err := s.getEntity(ctx, id)
		if err != nil || !found {
			return domain.Todo{}, found, err
		}
		_, err = s.todoTable.DeleteEntity(ctx, todoPartition, id, &aztables.DeleteEntityOptions{IfMatch: &etag})
		switch {
		case err == nil:
			return current, true, nil
		case isNotFound(err):
			return domain.Todo{}, false, nil
		case isConflict(err) && attempt < maxWriteAttempts:
			continue
		case isConflict(err):
			return domain.Todo{}, false, fmt.Errorf("todo %s: %w", id, domain.ErrConflict)
		default:
			return domain.Todo{}, false, err
		}
	}
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusPreconditionFailed
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func sortNewestFirst(todos []domain.Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		if !todos[i].CreatedAt.Equal(todos[j].CreatedAt) {
			return todos[i].CreatedAt.After(todos[j].CreatedAt)
		}
		return todos[i].ID > todos[j].ID
	})
}
