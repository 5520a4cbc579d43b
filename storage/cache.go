package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"prism-todo/domain"
)

type backend interface {
	Insert(ctx context.Context, in domain.NewTodo) (domain.Todo, error)
	List(ctx context.Context) ([]domain.Todo, error)
	Get(ctx context.Context, id string) (domain.Todo, bool, error)
	Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, bool, error)
	Delete(ctx context.Context, id string) (domain.Todo, bool, error)
}

// Cache wraps a store with Redis-backed caching for read operations.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

func (c *Cache) List(ctx context.Context) ([]domain.Todo, error) {
	var todos []domain.Todo
	if c.load(ctx, listCacheKey, &todos) {
		return todos, nil
	}

	gen, ok := c.generation(ctx)
	todos, err := c.base.List(ctx)
	if err != nil {
		return nil, err
	}

	if ok {
		c.store(ctx, listCacheKey, gen, todos)
	}
	return todos, nil
}

func (c *Cache) Get(ctx context.Context, id string) (domain.Todo, bool, error) {
	var todo domain.Todo
	if c.load(ctx, todoCacheKey(id), &todo) {
		return todo, true, nil
	}

	gen, ok := c.generation(ctx)
	todo, found, err := c.base.Get(ctx, id)
	if err != nil || !found {
		return todo, found, err
	}

	if ok {
		c.store(ctx, todoCacheKey(id), gen, todo)
	}
	return todo, true, nil
}

func (c *Cache) Insert(ctx context.Context, in domain.NewTodo) (domain.Todo, error) {
	todo, err := c.base.Insert(ctx, in)
	if err != nil {
		return todo, err
	}

	c.evict(ctx, "")
	return todo, nil
}

func (c *Cache) Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, bool, error) {
	todo, found, err := c.base.Update(ctx, id, patch)
	if err != nil {
		return todo, found, err
	}

	c.evict(ctx, id)
	return todo, found, nil
}

func (c *Cache) Delete(ctx context.Context, id string) (domain.Todo, bool, error) {
	todo, found, err := c.base.Delete(ctx, id)
	if err != nil {
		return todo, found, err
	}

	c.evict(ctx, id)
	return todo, found, nil
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// generation reads the write counter a reader must still see when it
// populates the cache.
func (c *Cache) generation(ctx context.Context) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, generationKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false
	}
	return gen, true
}

// store caches v unless a mutation bumped the generation since gen was read.
func (c *Cache) store(ctx context.Context, key, gen string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, generationKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, generationKey)
}

// evict bumps the generation and drops the affected keys in one transaction,
// so no read that started before the mutation can repopulate them.
func (c *Cache) evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	keys := []string{listCacheKey}
	if id != "" {
		keys = append(keys, todoCacheKey(id))
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
}

var errStaleRead = errors.New("cache: generation changed during read")

const (
	listCacheKey  = "todos:list"
	generationKey = "todos:gen"
)

func todoCacheKey(id string) string {
	return "todo:" + id
}
