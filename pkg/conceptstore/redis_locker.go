package conceptstore

import (
	"concept-digest-be/internal/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker holds the per-user lock in Redis so replicas share it. The
// TTL bounds how long a crashed holder can block the user.
type RedisLocker struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
	prefix       string
	logger       logger.ILogger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log logger.ILogger) *RedisLocker {
	return &RedisLocker{
		client:       client,
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
		prefix:       "concept-digest:run-lock:",
		logger:       log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, userId uuid.UUID) (func(), error) {
	key := l.prefix + userId.String()
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Error("CONCEPT_STORE", "Failed to release run lock", map[string]interface{}{
					"user_id": userId.String(),
					"error":   err.Error(),
				})
			}
		})
	}, nil
}
