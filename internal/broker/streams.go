// Package broker provides Redis Streams transport for creation events.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CreationStream is the stream carrying content creation events.
	CreationStream = "events:content-created"

	// Default connection timeout for Redis operations.
	defaultConnectionTimeout = 2 * time.Second
)

// StreamsClient wraps a Redis client with streams-specific operations.
type StreamsClient struct {
	client *redis.Client
	stream string
}

// StreamsConfig holds configuration for the Redis Streams client.
type StreamsConfig struct {
	Addr     string
	Password string `json:"-"`
	DB       int
	Stream   string // Stream key (default: CreationStream)
}

// NewStreamsClient creates a new Redis Streams client and verifies the
// connection.
func NewStreamsClient(cfg StreamsConfig) (*StreamsClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStreamsClientFromRedis(client, cfg.Stream), nil
}

// NewStreamsClientFromRedis creates a StreamsClient from an existing
// Redis client.
func NewStreamsClientFromRedis(client *redis.Client, stream string) *StreamsClient {
	if stream == "" {
		stream = CreationStream
	}
	return &StreamsClient{
		client: client,
		stream: stream,
	}
}

// Stream returns the stream key this client operates on.
func (c *StreamsClient) Stream() string {
	return c.stream
}

// Close closes the underlying Redis client.
func (c *StreamsClient) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *StreamsClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// CreateConsumerGroup creates a consumer group if it doesn't exist.
// The group starts at offset "0" so a cold-started consumer reads the
// full retained history.
func (c *StreamsClient) CreateConsumerGroup(ctx context.Context, group string) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// XAdd adds a message to the stream.
func (c *StreamsClient) XAdd(ctx context.Context, values map[string]any) (string, error) {
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: values,
	}).Result()
}

// XReadGroup reads new messages from the stream for a consumer group.
func (c *StreamsClient) XReadGroup(
	ctx context.Context, group, consumer string, count int64, block time.Duration,
) ([]redis.XStream, error) {
	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
}

// XAck acknowledges messages for a consumer group.
func (c *StreamsClient) XAck(ctx context.Context, group string, ids ...string) error {
	return c.client.XAck(ctx, c.stream, group, ids...).Err()
}

// XPendingExt returns detailed pending entries for a consumer group.
func (c *StreamsClient) XPendingExt(
	ctx context.Context, group, start, end string, count int64,
) ([]redis.XPendingExt, error) {
	return c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	}).Result()
}

// XClaim claims pending messages for a consumer.
func (c *StreamsClient) XClaim(
	ctx context.Context, group, consumer string, minIdle time.Duration, ids ...string,
) ([]redis.XMessage, error) {
	return c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
}

// XLen returns the length of the stream.
func (c *StreamsClient) XLen(ctx context.Context) (int64, error) {
	return c.client.XLen(ctx, c.stream).Result()
}

// XTrimMaxLen trims the stream to a maximum length.
func (c *StreamsClient) XTrimMaxLen(ctx context.Context, maxLen int64) error {
	return c.client.XTrimMaxLen(ctx, c.stream, maxLen).Err()
}
