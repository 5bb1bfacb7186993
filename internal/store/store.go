package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/pkg/cache"
)

// ErrNotFound is returned by GetJSON on a cache miss.
var ErrNotFound = errors.New("store: key not found")

// Store is the key-value cache behind the catalog service.
type Store interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// RedisStore keeps JSON values in Redis.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedis connects to Redis and verifies the connection. Keys are stored
// under prefix.
func NewRedis(addr string, db int, password, prefix string, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("store.redis.connected", zap.String("addr", addr), zap.Int("db", db))
	return &RedisStore{redis: rdb, prefix: prefix, logger: logger}, nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.key(key), data, ttl).Err()
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.redis.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// MemoryStore is an in-process Store used when no Redis address is configured.
// Values are kept JSON-encoded so reads never alias writers' data.
type MemoryStore struct {
	cache *cache.Cache[[]byte]
	stop  context.CancelFunc
}

// NewMemory creates a MemoryStore and starts its expiry cleaner.
func NewMemory(cleanupEvery time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	c := cache.New[[]byte](0)
	go c.StartCleaner(ctx, cleanupEvery)
	return &MemoryStore{cache: c, stop: cancel}
}

func (s *MemoryStore) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.cache.PutTTL(key, data, ttl)
	return nil
}

func (s *MemoryStore) GetJSON(_ context.Context, key string, dest any) error {
	data, ok := s.cache.Get(key)
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Bust(key)
	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.stop()
	return nil
}
