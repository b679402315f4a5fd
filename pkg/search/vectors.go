package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedVector is a persisted view embedding
type CachedVector struct {
	ViewName  string    `json:"view_name"`
	Model     string    `json:"model"`
	Vector    []float32 `json:"vector"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VectorStore persists embeddings between restarts
type VectorStore interface {
	GetVector(ctx context.Context, name string) (*CachedVector, error)
	SetVector(ctx context.Context, v CachedVector) error
	InvalidateVector(ctx context.Context, name string) error
	Purge(ctx context.Context) (int, error)
}

// RedisVectorStore keeps one JSON document per view under keyPrefix
type RedisVectorStore struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

// NewRedisVectorStore creates a vector store. keyPrefix should end with a separator;
// a zero ttl keeps vectors until they are invalidated.
func NewRedisVectorStore(redisClient *redis.Client, keyPrefix string, ttl time.Duration) *RedisVectorStore {
	return &RedisVectorStore{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
	}
}

// GetVector retrieves a cached embedding, or nil on a miss
func (s *RedisVectorStore) GetVector(ctx context.Context, name string) (*CachedVector, error) {
	data, err := s.redisClient.Get(ctx, s.keyPrefix+name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}

		return nil, err
	}

	var cached CachedVector
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		return nil, err
	}

	return &cached, nil
}

// SetVector stores an embedding
func (s *RedisVectorStore) SetVector(ctx context.Context, v CachedVector) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.redisClient.Set(ctx, s.keyPrefix+v.ViewName, data, s.ttl).Err()
}

// InvalidateVector removes one embedding
func (s *RedisVectorStore) InvalidateVector(ctx context.Context, name string) error {
	return s.redisClient.Del(ctx, s.keyPrefix+name).Err()
}

// Purge removes every embedding under the prefix and returns how many were deleted
func (s *RedisVectorStore) Purge(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redisClient.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, err
		}

		if len(keys) > 0 {
			n, err := s.redisClient.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}

			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
