package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a space lock cannot be taken before the wait budget runs out.
var ErrLockTimeout = errors.New("timed out waiting for space lock")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisSpaceLocker is a per-space mutex shared by every process using the same Redis.
type RedisSpaceLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// NewRedisSpaceLocker builds a locker whose keys expire after ttl so that a
// crashed holder cannot block a space forever.
func NewRedisSpaceLocker(client *redis.Client, ttl time.Duration) *RedisSpaceLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisSpaceLocker{
		client: client,
		ttl:    ttl,
		wait:   ttl,
		retry:  25 * time.Millisecond,
	}
}

func lockKey(spaceID int64) string {
	return fmt.Sprintf("venuebook:space_lock:%d", spaceID)
}

func (l *RedisSpaceLocker) Lock(ctx context.Context, spaceID int64) (func(), error) {
	if l.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	key := lockKey(spaceID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire space lock: %w", err)
		}
		if ok {
			return func() {
				// the caller's ctx may already be cancelled
				_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
