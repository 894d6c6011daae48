package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
)

const (
	// Default block timeout for reading from the stream.
	defaultBlockTimeout = 5 * time.Second

	// Default count of messages to read per batch.
	defaultBatchSize = 10

	// Default minimum idle time before claiming pending messages.
	defaultClaimMinIdle = 5 * time.Minute

	// Maximum pending messages to check at once.
	maxPendingCheck = 100
)

// Consumer reads creation events from the stream for one consumer
// group. Each group receives every event independently.
type Consumer struct {
	client        *StreamsClient
	consumerGroup string
	consumerID    string
	blockTimeout  time.Duration
	batchSize     int64
	claimMinIdle  time.Duration
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	ConsumerGroup string        // Consumer group name
	ConsumerID    string        // Unique consumer identifier
	BlockTimeout  time.Duration // Block timeout for reads (0 = default)
	BatchSize     int64         // Number of messages per read (0 = default)
	ClaimMinIdle  time.Duration // Min idle time before claiming (0 = default)
}

// Message is a stream entry read by a consumer. ParseErr is set when
// the payload is malformed; the message still carries its ID so the
// handler can acknowledge and skip it.
type Message struct {
	ID       string
	Event    domain.CreationEvent
	ParseErr error
}

// NewConsumer creates a new event consumer.
func NewConsumer(client *StreamsClient, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.ConsumerGroup == "" {
		return nil, errors.New("consumer group is required")
	}
	if cfg.ConsumerID == "" {
		return nil, errors.New("consumer ID is required")
	}

	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = defaultBlockTimeout
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	claimMinIdle := cfg.ClaimMinIdle
	if claimMinIdle <= 0 {
		claimMinIdle = defaultClaimMinIdle
	}

	return &Consumer{
		client:        client,
		consumerGroup: cfg.ConsumerGroup,
		consumerID:    cfg.ConsumerID,
		blockTimeout:  blockTimeout,
		batchSize:     batchSize,
		claimMinIdle:  claimMinIdle,
	}, nil
}

// Initialize creates the consumer group, starting from the earliest
// retained offset.
func (c *Consumer) Initialize(ctx context.Context) error {
	if err := c.client.CreateConsumerGroup(ctx, c.consumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group %s: %w", c.consumerGroup, err)
	}
	return nil
}

// Read returns the next batch of messages. Pending messages idle past
// the claim threshold are reclaimed first so a crashed consumer's
// deliveries are not lost.
func (c *Consumer) Read(ctx context.Context) ([]*Message, error) {
	reclaimed := c.reclaimPending(ctx)
	if len(reclaimed) > 0 {
		return reclaimed, nil
	}

	streams, err := c.client.XReadGroup(ctx, c.consumerGroup, c.consumerID, c.batchSize, c.blockTimeout)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No messages available
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return parseStreams(streams), nil
}

// Acknowledge commits a message for this consumer group. Call only
// after the message's effects are durably applied: a crash before the
// ack results in redelivery, not loss.
func (c *Consumer) Acknowledge(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message cannot be nil")
	}
	return c.client.XAck(ctx, c.consumerGroup, msg.ID)
}

// PendingCount returns the count of delivered-but-unacknowledged
// messages for this group.
func (c *Consumer) PendingCount(ctx context.Context) (int64, error) {
	pending, err := c.client.XPendingExt(ctx, c.consumerGroup, "-", "+", maxPendingCheck)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return int64(len(pending)), nil
}

// reclaimPending claims messages another consumer in the group left
// idle past the threshold.
func (c *Consumer) reclaimPending(ctx context.Context) []*Message {
	pending, err := c.client.XPendingExt(ctx, c.consumerGroup, "-", "+", maxPendingCheck)
	if err != nil {
		return nil
	}

	var idsToReclaim []string
	for _, entry := range pending {
		if entry.Idle >= c.claimMinIdle {
			idsToReclaim = append(idsToReclaim, entry.ID)
		}
	}
	if len(idsToReclaim) == 0 {
		return nil
	}

	claimed, claimErr := c.client.XClaim(ctx, c.consumerGroup, c.consumerID, c.claimMinIdle, idsToReclaim...)
	if claimErr != nil {
		return nil
	}

	messages := make([]*Message, 0, len(claimed))
	for _, msg := range claimed {
		messages = append(messages, parseMessage(msg))
	}
	return messages
}

// ConsumerGroup returns the consumer group name.
func (c *Consumer) ConsumerGroup() string {
	return c.consumerGroup
}

// ConsumerID returns the consumer ID.
func (c *Consumer) ConsumerID() string {
	return c.consumerID
}

func parseStreams(streams []redis.XStream) []*Message {
	var messages []*Message
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, parseMessage(msg))
		}
	}
	return messages
}

func parseMessage(msg redis.XMessage) *Message {
	data, ok := msg.Values[EventField].(string)
	if !ok {
		return &Message{
			ID:       msg.ID,
			ParseErr: fmt.Errorf("%w: missing event field", domain.ErrMalformedEvent),
		}
	}

	ev, err := domain.ParseCreationEvent([]byte(data))
	if err != nil {
		return &Message{ID: msg.ID, ParseErr: err}
	}

	return &Message{ID: msg.ID, Event: ev}
}
