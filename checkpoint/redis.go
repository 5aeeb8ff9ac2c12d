package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/ragflow/graph"
)

// RedisStore implements Store on Redis. Checkpoints are stored per
// (run, step) key with a per-run index set.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "ragflow:"
	TTL      time.Duration // checkpoint expiration, default 0 (no expiration)
}

// NewRedisStore creates a Redis checkpoint store.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts)
}

// NewRedisStoreWithClient wraps an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ragflow:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) checkpointKey(runID string, step int) string {
	return fmt.Sprintf("%scheckpoint:%s:%d", s.prefix, runID, step)
}

func (s *RedisStore) runKey(runID string) string {
	return fmt.Sprintf("%srun:%s:steps", s.prefix, runID)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, cp graph.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.checkpointKey(cp.RunID, cp.Step), data, s.ttl)
	pipe.ZAdd(ctx, s.runKey(cp.RunID), redis.Z{Score: float64(cp.Step), Member: cp.Step})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.runKey(cp.RunID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *RedisStore) Latest(ctx context.Context, runID string) (graph.Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, s.runKey(runID), 0, 0).Result()
	if err != nil {
		return graph.Checkpoint{}, fmt.Errorf("failed to read run index: %w", err)
	}
	if len(members) == 0 {
		return graph.Checkpoint{}, ErrNotFound
	}
	return s.load(ctx, runID, members[0])
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, runID string) ([]graph.Checkpoint, error) {
	members, err := s.client.ZRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}

	var out []graph.Checkpoint
	for _, member := range members {
		cp, err := s.load(ctx, runID, member)
		if err != nil {
			if err == ErrNotFound {
				continue // expired entry still present in the index
			}
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	members, err := s.client.ZRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read run index: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, member := range members {
		pipe.Del(ctx, s.prefix+"checkpoint:"+runID+":"+member)
	}
	pipe.Del(ctx, s.runKey(runID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, runID, step string) (graph.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.prefix+"checkpoint:"+runID+":"+step).Bytes()
	if err != nil {
		if err == redis.Nil {
			return graph.Checkpoint{}, ErrNotFound
		}
		return graph.Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var cp graph.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return graph.Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}
