// Package consumer runs the stream consumers that materialize feeds
// and index content from creation events.
package consumer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arunpatilgithub/twitter-microservices/internal/broker"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/metrics"
)

// Handler processes one creation event. Returning an error leaves the
// message unacknowledged so the group redelivers it.
type Handler interface {
	Name() string
	Handle(ctx context.Context, event domain.CreationEvent) error
}

// Worker drives one consumer group over the creation stream. Delivery
// is at least once: a message is acknowledged only after the handler's
// durable effects, and handlers absorb redelivery idempotently.
type Worker struct {
	consumer *broker.Consumer
	handler  Handler
	metrics  *metrics.Metrics
	logger   logger.Logger
	tracer   trace.Tracer

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewWorker creates a worker for the given handler.
func NewWorker(consumer *broker.Consumer, handler Handler, m *metrics.Metrics, log logger.Logger) *Worker {
	return &Worker{
		consumer: consumer,
		handler:  handler,
		metrics:  m,
		logger:   log.With(logger.String("consumer", handler.Name())),
		tracer:   otel.Tracer(handler.Name()),
		stopChan: make(chan struct{}),
	}
}

// Start creates the consumer group if needed and begins the read loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if err := w.consumer.Initialize(ctx); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("consumer started")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("consumer stopped")
}

// Group returns the consumer group this worker reads for.
func (w *Worker) Group() string {
	return w.consumer.ConsumerGroup()
}

// IsRunning reports whether the worker has been started.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		messages, err := w.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("read from stream failed", logger.Error(err))
			continue
		}

		for _, msg := range messages {
			w.processOne(ctx, msg)
		}
	}
}

// ProcessBatch reads and handles one batch. Exposed for the workers'
// tests; the run loop calls the same path.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		w.processOne(ctx, msg)
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, msg *broker.Message) {
	if msg.ParseErr != nil {
		// Poison message: acknowledge and move on so it cannot wedge
		// the group.
		w.logger.Warn("skipping malformed event",
			logger.String("message_id", msg.ID),
			logger.Error(msg.ParseErr),
		)
		if err := w.consumer.Acknowledge(ctx, msg); err != nil {
			w.logger.Error("acknowledge malformed event failed",
				logger.String("message_id", msg.ID),
				logger.Error(err),
			)
		}
		if w.metrics != nil {
			w.metrics.EventsSkipped.WithLabelValues(w.handler.Name()).Inc()
		}
		return
	}

	ctx, span := w.tracer.Start(ctx, "consumer.process",
		trace.WithAttributes(
			attribute.String("message.id", msg.ID),
			attribute.String("content.id", msg.Event.ContentID),
		),
	)
	defer span.End()

	if err := w.handler.Handle(ctx, msg.Event); err != nil {
		// Leave unacknowledged; the pending-entry reclaim path will
		// redeliver it.
		w.logger.Error("event processing failed, leaving for redelivery",
			logger.String("message_id", msg.ID),
			logger.String("content_id", msg.Event.ContentID),
			logger.Error(err),
		)
		return
	}

	if err := w.consumer.Acknowledge(ctx, msg); err != nil {
		// Effects are durable and idempotent; redelivery is safe.
		w.logger.Error("acknowledge failed",
			logger.String("message_id", msg.ID),
			logger.Error(err),
		)
		return
	}

	if w.metrics != nil {
		w.metrics.EventsConsumed.WithLabelValues(w.handler.Name()).Inc()
	}
}
