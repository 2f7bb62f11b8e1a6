package lock

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed release.lua
var releaseScript string

// Redis locks keys across processes sharing one Redis server. Locks
// expire after TTL so a crashed holder cannot block a repository forever.
type Redis struct {
	client *redis.Client
	script *redis.Script
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		script: redis.NewScript(releaseScript),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Redis) TryLock(ctx context.Context, key string) (Release, error) {
	fullKey := r.prefix + key
	token := uuid.NewString()

	acquired, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("could not acquire lock %s: %w", fullKey, err)
	}
	if !acquired {
		return nil, ErrHeld
	}

	var once sync.Once
	var releaseErr error
	return func(ctx context.Context) error {
		once.Do(func() {
			err := r.script.Run(ctx, r.client, []string{fullKey}, token).Err()
			if err != nil {
				releaseErr = fmt.Errorf("could not release lock %s: %w", fullKey, err)
			}
		})
		return releaseErr
	}, nil
}
