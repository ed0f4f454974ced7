package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	// URL is a redis connection URL (redis://host:port/db).
	URL string
	// Prefix namespaces the store's keys; defaults to "fingraph:templates".
	Prefix string
}

// RedisStore keeps one key per template at <prefix>:<id>. SETNX semantics
// enforce the no-overwrite contract even across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the redis instance described by opts.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(redisOpts), opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fingraph:templates"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// List scans the store's keyspace and returns every template id, sorted.
func (s *RedisStore) List() ([]string, error) {
	ctx := context.Background()
	var ids []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning templates: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, s.prefix+":"))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(ids)
	return ids, nil
}

// Save stores payload under id, failing if the key already exists.
func (s *RedisStore) Save(id string, payload []byte) error {
	ctx := context.Background()
	set, err := s.client.SetNX(ctx, s.key(id), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("saving template %q: %w", id, err)
	}
	if !set {
		return AlreadyExists(id)
	}
	return nil
}

// Load returns the payload stored under id.
func (s *RedisStore) Load(id string) ([]byte, error) {
	ctx := context.Background()
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, NotFound(id)
		}
		return nil, fmt.Errorf("loading template %q: %w", id, err)
	}
	return payload, nil
}

// Delete removes the key. Absent keys are ignored.
func (s *RedisStore) Delete(id string) error {
	ctx := context.Background()
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting template %q: %w", id, err)
	}
	return nil
}
