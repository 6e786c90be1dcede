package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures Redis access for risk-state persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps subject risk levels in Redis so they survive a
// process restart. It satisfies the same Store contract as MemoryStore;
// the poller does not know which one it is talking to.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed risk-state store and verifies
// connectivity before returning.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "ssf:risk"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis risk store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

func (s *RedisStore) Get(ctx context.Context, subject string) (Level, error) {
	val, err := s.client.Get(ctx, s.subjectKey(subject)).Result()
	if err == redis.Nil {
		return Low, nil
	}
	if err != nil {
		return Low, fmt.Errorf("read risk level for %s: %w", subject, err)
	}
	return NormalizeLevel(val), nil
}

func (s *RedisStore) Set(ctx context.Context, subject string, level Level) error {
	if err := s.client.Set(ctx, s.subjectKey(subject), level.String(), 0).Err(); err != nil {
		return fmt.Errorf("write risk level for %s: %w", subject, err)
	}
	return nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) subjectKey(subject string) string {
	return s.prefix + ":subject:" + subject
}
