// Package cache provides the hot-content cache populated under the
// push fanout strategy.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
)

// DefaultTTL bounds how long a cached content item stays hot.
const DefaultTTL = time.Hour

// ContentCache stores serialized content items with a bounded TTL.
// Writes are best-effort: a failure is reported to the caller for
// logging but must never fail the write path. Absence is a valid
// cache-miss outcome, never an error.
type ContentCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// New creates a content cache.
func New(client *redis.Client, ttl time.Duration, log logger.Logger) *ContentCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ContentCache{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (c *ContentCache) key(contentID string) string {
	return fmt.Sprintf("content:%s", contentID)
}

// Set caches a content item under its ID with the configured TTL.
func (c *ContentCache) Set(ctx context.Context, item domain.ContentItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("serialize content for cache: %w", err)
	}

	key := c.key(item.ID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed",
			logger.String("content_id", item.ID),
			logger.String("cache_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("cache set: %w", err)
	}

	c.logger.Debug("content cached",
		logger.String("content_id", item.ID),
		logger.Duration("ttl", c.ttl),
	)
	return nil
}

// Get returns the cached content item and whether it was present.
func (c *ContentCache) Get(ctx context.Context, contentID string) (domain.ContentItem, bool, error) {
	data, err := c.client.Get(ctx, c.key(contentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ContentItem{}, false, nil
	}
	if err != nil {
		return domain.ContentItem{}, false, fmt.Errorf("cache get: %w", err)
	}

	var item domain.ContentItem
	if err := json.Unmarshal(data, &item); err != nil {
		// A corrupt entry behaves like a miss; it will expire.
		c.logger.Warn("corrupt cache entry",
			logger.String("content_id", contentID),
			logger.Error(err),
		)
		return domain.ContentItem{}, false, nil
	}

	return item, true, nil
}

// Delete evicts a content item from the cache.
func (c *ContentCache) Delete(ctx context.Context, contentID string) error {
	if err := c.client.Del(ctx, c.key(contentID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
