// Package publisher delivers creation events to the broker with
// circuit breaking, bounded retries, and a dead-letter fallback. A
// creation event is never silently lost: it reaches the stream or the
// dead-letter store.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arunpatilgithub/twitter-microservices/internal/breaker"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/metrics"
	"github.com/arunpatilgithub/twitter-microservices/internal/retry"
)

const defaultAttemptTimeout = 2 * time.Second

// EventProducer appends a creation event to the broker stream.
type EventProducer interface {
	Publish(ctx context.Context, event domain.CreationEvent) (string, error)
}

// DeadLetterStore records events that exhausted delivery.
type DeadLetterStore interface {
	Append(ctx context.Context, entry domain.DeadLetterEvent) error
}

// Config holds publisher tuning.
type Config struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	Retry          retry.Config  `yaml:"-"`
}

// Publisher wraps an EventProducer with resilience. Each attempt runs
// under its own timeout and passes through the circuit breaker; a
// breaker-open rejection is not retried, it goes straight to the
// dead-letter store.
type Publisher struct {
	producer       EventProducer
	deadLetters    DeadLetterStore
	breaker        *breaker.Breaker
	retryConfig    retry.Config
	attemptTimeout time.Duration
	metrics        *metrics.Metrics
	logger         logger.Logger
	tracer         trace.Tracer
}

// New creates a resilient publisher.
func New(
	producer EventProducer,
	deadLetters DeadLetterStore,
	brk *breaker.Breaker,
	cfg Config,
	m *metrics.Metrics,
	log logger.Logger,
) *Publisher {
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}

	retryConfig := cfg.Retry
	retryConfig.IsRetryable = func(err error) bool {
		return !errors.Is(err, breaker.ErrCircuitOpen)
	}

	return &Publisher{
		producer:       producer,
		deadLetters:    deadLetters,
		breaker:        brk,
		retryConfig:    retryConfig,
		attemptTimeout: attemptTimeout,
		metrics:        m,
		logger:         log,
		tracer:         otel.Tracer("publisher"),
	}
}

// Publish delivers the event to the broker. When the retry budget is
// exhausted or the circuit is open, the event is recorded in the
// dead-letter store and ErrPublishExhausted is returned. An error from
// Publish means the event is in the dead-letter store, not the stream;
// callers on the write path log it and carry on.
func (p *Publisher) Publish(ctx context.Context, event domain.CreationEvent) error {
	ctx, span := p.tracer.Start(ctx, "publisher.Publish",
		trace.WithAttributes(
			attribute.String("content.id", event.ContentID),
			attribute.String("author.id", event.AuthorID),
		),
	)
	defer span.End()

	err := retry.Do(ctx, p.retryConfig, func(ctx context.Context) error {
		return p.attempt(ctx, event)
	})
	if err == nil {
		return nil
	}

	reason := failureReason(err)
	span.SetAttributes(attribute.String("publish.failure_reason", reason))

	p.logger.Error("publish failed, diverting to dead letter store",
		logger.String("content_id", event.ContentID),
		logger.String("failure_reason", reason),
		logger.Error(err),
	)

	entry := domain.NewDeadLetterEvent(event, reason)
	if dlqErr := p.deadLetters.Append(ctx, entry); dlqErr != nil {
		// The event is now lost unless the caller keeps it. Surface the
		// store failure rather than the publish failure.
		p.logger.Error("dead letter append failed",
			logger.String("content_id", event.ContentID),
			logger.Error(dlqErr),
		)
		return fmt.Errorf("append dead letter for %s: %w", event.ContentID, dlqErr)
	}

	if p.metrics != nil {
		p.metrics.DeadLetters.Inc()
	}

	return fmt.Errorf("%w: %s", domain.ErrPublishExhausted, reason)
}

// attempt runs a single breaker-guarded publish under its own timeout.
func (p *Publisher) attempt(ctx context.Context, event domain.CreationEvent) error {
	if p.metrics != nil {
		p.metrics.PublishAttempts.Inc()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	err := p.breaker.Execute(attemptCtx, func(ctx context.Context) error {
		_, publishErr := p.producer.Publish(ctx, event)
		return publishErr
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.PublishFailures.Inc()
		}
		p.logger.Warn("publish attempt failed",
			logger.String("content_id", event.ContentID),
			logger.Error(err),
		)
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		return "circuit open"
	case errors.Is(err, retry.ErrMaxAttemptsExceeded):
		return "retry budget exhausted"
	case errors.Is(err, retry.ErrContextCancelled):
		return "context cancelled"
	default:
		return err.Error()
	}
}
