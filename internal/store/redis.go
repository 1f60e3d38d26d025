package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the notification queue. Blocking pops are issued by the worker
// binary; the API only pushes, so timeouts stay short.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis at addr.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// QueueDepth reports the number of undelivered events on a notification list.
func (r *Redis) QueueDepth(ctx context.Context, key string) (int64, error) {
	return r.Client.LLen(ctx, key).Result()
}
