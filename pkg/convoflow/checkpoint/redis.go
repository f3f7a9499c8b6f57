package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists checkpoints to Redis, one hash per thread.
// Suitable when several processes share the thread store.
type RedisStore struct {
	client *redis.Client
	prefix string

	mu     sync.RWMutex
	closed bool
}

// RedisOption configures the Redis store.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the default "convoflow" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(addr string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "convoflow",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisStoreFromClient wraps an existing client (used by tests with
// miniredis).
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "convoflow"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) dataKey(threadID string) string {
	return fmt.Sprintf("%s:cp:%s", s.prefix, threadID)
}

func (s *RedisStore) metaKey(threadID string) string {
	return fmt.Sprintf("%s:cpmeta:%s", s.prefix, threadID)
}

// Save implements Store.
func (s *RedisStore) Save(threadID string, sequence int, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	ctx := context.Background()
	field := strconv.Itoa(sequence)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.dataKey(threadID), field, data)
	pipe.HSet(ctx, s.metaKey(threadID), field, time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *RedisStore) LoadLatest(threadID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ctx := context.Background()
	fields, err := s.client.HKeys(ctx, s.dataKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoint keys: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	latest := -1
	for _, f := range fields {
		if seq, err := strconv.Atoi(f); err == nil && seq > latest {
			latest = seq
		}
	}
	if latest < 0 {
		return nil, ErrNotFound
	}

	return s.load(ctx, threadID, latest)
}

// Load implements Store.
func (s *RedisStore) Load(threadID string, sequence int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	return s.load(context.Background(), threadID, sequence)
}

func (s *RedisStore) load(ctx context.Context, threadID string, sequence int) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.dataKey(threadID), strconv.Itoa(sequence)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *RedisStore) List(threadID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ctx := context.Background()
	entries, err := s.client.HGetAll(ctx, s.dataKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	meta, err := s.client.HGetAll(ctx, s.metaKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoint metadata: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for field, data := range entries {
		seq, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		info := Info{ThreadID: threadID, Sequence: seq, Size: int64(len(data))}
		if ts, ok := meta[field]; ok {
			info.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Sequence < infos[j].Sequence })
	return infos, nil
}

// DeleteThread implements Store.
func (s *RedisStore) DeleteThread(threadID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	ctx := context.Background()
	if err := s.client.Del(ctx, s.dataKey(threadID), s.metaKey(threadID)).Err(); err != nil {
		return fmt.Errorf("delete thread checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
