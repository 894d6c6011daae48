package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
)

const (
	// EventField is the field name for the serialized event in stream
	// messages.
	EventField = "event"

	// PublishedAtField is the field name for the publish timestamp.
	PublishedAtField = "published_at"

	// Default max stream length to prevent unbounded growth.
	defaultMaxStreamLen = 100000
)

// Producer appends creation events to the stream.
type Producer struct {
	client       *StreamsClient
	maxStreamLen int64
}

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	MaxStreamLen int64 // Maximum stream length (0 = default)
}

// NewProducer creates a new event producer.
func NewProducer(client *StreamsClient, cfg ProducerConfig) *Producer {
	maxLen := cfg.MaxStreamLen
	if maxLen <= 0 {
		maxLen = defaultMaxStreamLen
	}

	return &Producer{
		client:       client,
		maxStreamLen: maxLen,
	}
}

// Publish appends a creation event to the stream and returns the
// broker-assigned message ID. Delivery is at-least-once: the broker
// retains the message until every consumer group acknowledges it.
func (p *Producer) Publish(ctx context.Context, ev domain.CreationEvent) (string, error) {
	if ev.ContentID == "" {
		return "", fmt.Errorf("%w: missing content_id", domain.ErrMalformedEvent)
	}

	data, marshalErr := json.Marshal(ev)
	if marshalErr != nil {
		return "", fmt.Errorf("failed to serialize event: %w", marshalErr)
	}

	values := map[string]any{
		EventField:       string(data),
		PublishedAtField: time.Now().UTC().Format(time.RFC3339),
	}

	messageID, addErr := p.client.XAdd(ctx, values)
	if addErr != nil {
		return "", fmt.Errorf("failed to publish event to stream %s: %w", p.client.Stream(), addErr)
	}

	return messageID, nil
}

// TrimStream trims the stream to the configured maximum length.
func (p *Producer) TrimStream(ctx context.Context) error {
	return p.client.XTrimMaxLen(ctx, p.maxStreamLen)
}

// StreamDepth returns the current stream length.
func (p *Producer) StreamDepth(ctx context.Context) (int64, error) {
	return p.client.XLen(ctx)
}
