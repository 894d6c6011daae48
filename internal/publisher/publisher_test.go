package publisher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arunpatilgithub/twitter-microservices/internal/breaker"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/metrics"
	"github.com/arunpatilgithub/twitter-microservices/internal/publisher"
	"github.com/arunpatilgithub/twitter-microservices/internal/retry"
)

type fakeProducer struct {
	calls    int
	failures int // fail this many calls before succeeding
	err      error
}

func (f *fakeProducer) Publish(_ context.Context, _ domain.CreationEvent) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return "1-0", nil
}

type fakeDeadLetters struct {
	entries []domain.DeadLetterEvent
	err     error
}

func (f *fakeDeadLetters) Append(_ context.Context, entry domain.DeadLetterEvent) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func testEvent() domain.CreationEvent {
	return domain.CreationEvent{
		ContentID: "content-1",
		AuthorID:  "user-1",
		Body:      "hello",
		CreatedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func newPublisher(producer *fakeProducer, deadLetters *fakeDeadLetters, attempts int) *publisher.Publisher {
	brk := breaker.New(breaker.Config{WindowSize: 100, FailureThreshold: 0.99, ResetTimeout: time.Minute})
	cfg := publisher.Config{AttemptTimeout: time.Second, Retry: fastRetry(attempts)}
	m := metrics.New(prometheus.NewRegistry())
	return publisher.New(producer, deadLetters, brk, cfg, m, logger.Nop())
}

func TestPublisherSucceedsAfterTransientFailures(t *testing.T) {
	producer := &fakeProducer{failures: 2, err: errors.New("broker timeout")}
	deadLetters := &fakeDeadLetters{}
	p := newPublisher(producer, deadLetters, 3)

	if err := p.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if producer.calls != 3 {
		t.Errorf("producer called %d times, want 3", producer.calls)
	}
	if len(deadLetters.entries) != 0 {
		t.Errorf("dead letters = %d, want 0", len(deadLetters.entries))
	}
}

func TestPublisherExhaustedRetriesGoToDeadLetters(t *testing.T) {
	producer := &fakeProducer{failures: 100, err: errors.New("broker timeout")}
	deadLetters := &fakeDeadLetters{}
	p := newPublisher(producer, deadLetters, 3)

	event := testEvent()
	err := p.Publish(context.Background(), event)
	if !errors.Is(err, domain.ErrPublishExhausted) {
		t.Fatalf("Publish() error = %v, want ErrPublishExhausted", err)
	}
	if producer.calls != 3 {
		t.Errorf("producer called %d times, want 3", producer.calls)
	}

	if len(deadLetters.entries) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(deadLetters.entries))
	}
	entry := deadLetters.entries[0]
	if entry.ContentID != event.ContentID || entry.AuthorID != event.AuthorID ||
		entry.Body != event.Body || !entry.CreatedAt.Equal(event.CreatedAt) {
		t.Errorf("dead letter entry %+v does not preserve event %+v", entry, event)
	}
	if entry.FailureReason == "" {
		t.Error("dead letter entry has empty failure reason")
	}
}

func TestPublisherOpenCircuitSkipsRetries(t *testing.T) {
	producer := &fakeProducer{}
	deadLetters := &fakeDeadLetters{}

	brk := breaker.New(breaker.Config{WindowSize: 2, FailureThreshold: 0.4, ResetTimeout: time.Minute})
	boom := errors.New("broker down")
	for i := 0; i < 2; i++ {
		_ = brk.Execute(context.Background(), func(context.Context) error { return boom })
	}
	if brk.State() != breaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", brk.State())
	}

	cfg := publisher.Config{AttemptTimeout: time.Second, Retry: fastRetry(5)}
	p := publisher.New(producer, deadLetters, brk, cfg, nil, logger.Nop())

	err := p.Publish(context.Background(), testEvent())
	if !errors.Is(err, domain.ErrPublishExhausted) {
		t.Fatalf("Publish() error = %v, want ErrPublishExhausted", err)
	}
	if producer.calls != 0 {
		t.Errorf("producer called %d times while circuit open, want 0", producer.calls)
	}
	if len(deadLetters.entries) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(deadLetters.entries))
	}
	if deadLetters.entries[0].FailureReason != "circuit open" {
		t.Errorf("failure reason = %q, want %q", deadLetters.entries[0].FailureReason, "circuit open")
	}
}

func TestPublisherSurfacesDeadLetterStoreFailure(t *testing.T) {
	producer := &fakeProducer{failures: 100, err: errors.New("broker timeout")}
	deadLetters := &fakeDeadLetters{err: errors.New("database down")}
	p := newPublisher(producer, deadLetters, 2)

	err := p.Publish(context.Background(), testEvent())
	if err == nil {
		t.Fatal("Publish() error = nil, want dead letter store failure")
	}
	if errors.Is(err, domain.ErrPublishExhausted) {
		t.Errorf("Publish() error = %v, want store failure rather than ErrPublishExhausted", err)
	}
}
