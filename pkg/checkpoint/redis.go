package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces checkpoint keys in Redis.
const KeyPrefix = "ingest:checkpoint:"

// DefaultStream names the checkpoint when no stream is configured.
const DefaultStream = "events"

// ErrInvalidEntry indicates the stored checkpoint document is corrupted.
var ErrInvalidEntry = errors.New("invalid checkpoint entry")

// Key returns the Redis key for a stream's checkpoint.
func Key(stream string) string {
	if stream == "" {
		stream = DefaultStream
	}
	return KeyPrefix + stream
}

// RedisStore keeps the checkpoint as a JSON document under one key. The key
// has no TTL.
type RedisStore struct {
	redis *redis.Client
	key   string
	now   func() time.Time
}

// NewRedisStore creates a Redis-backed checkpoint store for stream.
func NewRedisStore(redisClient *redis.Client, stream string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		key:   Key(stream),
		now:   time.Now,
	}
}

// Load reads the checkpoint. A missing key loads as the zero checkpoint.
func (s *RedisStore) Load(ctx context.Context) (Checkpoint, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Checkpoint{}, nil
		}
		errorsTotal.WithLabelValues("redis", "load").Inc()
		return Checkpoint{}, fmt.Errorf("redis get: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		errorsTotal.WithLabelValues("redis", "load").Inc()
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return cp, nil
}

// Save overwrites the checkpoint document.
func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	cp.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		errorsTotal.WithLabelValues("redis", "save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		errorsTotal.WithLabelValues("redis", "save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	savesTotal.WithLabelValues("redis").Inc()
	return nil
}

// Reset deletes the checkpoint so the next run starts from the beginning.
func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		errorsTotal.WithLabelValues("redis", "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
