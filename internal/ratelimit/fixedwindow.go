package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow counts events per fixed period using the ulule/limiter Redis store.
type FixedWindow struct {
	store limiter.Store
}

// NewFixedWindow wires a fixed-window limiter store backed by Redis.
func NewFixedWindow(rdb *redis.Client, prefix string) (*FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: fixed window store: %w", err)
	}
	return &FixedWindow{store: store}, nil
}

// Allow records an event for key and reports whether it is within limit per window.
func (f *FixedWindow) Allow(ctx context.Context, key string, window time.Duration, limit int) (bool, int, time.Time, error) {
	if f == nil || f.store == nil || limit <= 0 || window <= 0 {
		return true, limit, time.Now().Add(window), nil
	}
	lim := limiter.New(f.store, limiter.Rate{Period: window, Limit: int64(limit)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
