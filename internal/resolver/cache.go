package resolver

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"pixav/internal/domain"
)

const cdnCachePrefix = "pixav:cdn:"

// RedisCDNCache stores resolved CDN URLs in Redis, keyed by video id.
type RedisCDNCache struct {
	client *redis.Client
}

// NewRedisCDNCache wraps an already-connected redis client.
func NewRedisCDNCache(client *redis.Client) *RedisCDNCache {
	return &RedisCDNCache{client: client}
}

func (c *RedisCDNCache) Get(ctx context.Context, videoID domain.VideoID) (string, bool, error) {
	val, err := c.client.Get(ctx, cdnCachePrefix+string(videoID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCDNCache) Set(ctx context.Context, videoID domain.VideoID, cdnURL string, ttl time.Duration) error {
	return c.client.Set(ctx, cdnCachePrefix+string(videoID), cdnURL, ttl).Err()
}

func (c *RedisCDNCache) Delete(ctx context.Context, videoID domain.VideoID) error {
	return c.client.Del(ctx, cdnCachePrefix+string(videoID)).Err()
}
