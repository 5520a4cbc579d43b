package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"prism-todo/domain"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS todos (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
)`

// SQLite keeps each todo as a JSON document in an embedded database.
// It is used for local development and tests.
type SQLite struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// OpenSQLite opens (and if needed creates) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// every connection to ":memory:" is a different database
	db.SetMaxOpenConns(1)
	if err := EnsureSQLiteSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}, nil
}

// EnsureSQLiteSchema creates the todos table when missing.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating todos table: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Insert(ctx context.Context, in domain.NewTodo) (domain.Todo, error) {
	todo := in.Build(s.newID(), s.now())
	doc, err := json.Marshal(todo)
	if err != nil {
		return domain.Todo{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO todos (id, created_at, doc) VALUES (?, ?, ?)`,
		todo.ID, todo.CreatedAt.UnixNano(), string(doc))
	if err != nil {
		return domain.Todo{}, fmt.Errorf("inserting todo: %w", err)
	}
	return todo, nil
}

func (s *SQLite) List(ctx context.Context) ([]domain.Todo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM todos ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	defer rows.Close()

	todos := []domain.Todo{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning todo: %w", err)
		}
		var t domain.Todo
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, fmt.Errorf("decoding todo: %w", err)
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, id string) (domain.Todo, bool, error) {
	if err := checkID(id); err != nil {
		return domain.Todo{}, false, err
	}
	return getDoc(ctx, s.db, id)
}

func (s *SQLite) Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, bool, error) {
	if err := checkID(id); err != nil {
		return domain.Todo{}, false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Todo{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, found, err := getDoc(ctx, tx, id)
	if err != nil || !found {
		return domain.Todo{}, found, err
	}
	updated := patch.Apply(current, s.now())
	doc, err := json.Marshal(updated)
	if err != nil {
		return domain.Todo{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE todos SET doc = ? WHERE id = ?`, string(doc), id); err != nil {
		return domain.Todo{}, false, fmt.Errorf("updating todo: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Todo{}, false, fmt.Errorf("committing update: %w", err)
	}
	return updated, true, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) (domain.Todo, bool, error) {
	if err := checkID(id); err != nil {
		return domain.Todo{}, false, err
	}
	var doc string
	err := s.db.QueryRowContext(ctx, `DELETE FROM todos WHERE id = ? RETURNING doc`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Todo{}, false, nil
	}
	if err != nil {
		return domain.Todo{}, false, fmt.Errorf("deleting todo: %w", err)
	}
	var t domain.Todo
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return domain.Todo{}, false, fmt.Errorf("decoding todo: %w", err)
	}
	return t, true, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDoc(ctx context.Context, q queryRower, id string) (domain.Todo, bool, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT doc FROM todos WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Todo{}, false, nil
	}
	if err != nil {
		return domain.Todo{}, false, fmt.Errorf("loading todo: %w", err)
	}
	var t domain.Todo
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return domain.Todo{}, false, fmt.Errorf("decoding todo: %w", err)
	}
	return t, true, nil
}
