// Package cache keeps the most recent broadcast record per tracker in Redis
// so clients connecting between change events can still read a live value.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttl = 24 * time.Hour

type LiveCache struct{ rdb *redis.Client }

func New(rdb *redis.Client) *LiveCache { return &LiveCache{rdb: rdb} }

func key(trackerID int64) string { return "tracker:live:" + strconv.FormatInt(trackerID, 10) }

func (c *LiveCache) Set(ctx context.Context, trackerID int64, payload []byte) error {
	return c.rdb.Set(ctx, key(trackerID), payload, ttl).Err()
}

// Get returns (nil, nil) when no live record is cached.
func (c *LiveCache) Get(ctx context.Context, trackerID int64) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key(trackerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (c *LiveCache) Delete(ctx context.Context, trackerID int64) error {
	return c.rdb.Del(ctx, key(trackerID)).Err()
}
