package consumer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/arunpatilgithub/twitter-microservices/internal/broker"
	"github.com/arunpatilgithub/twitter-microservices/internal/consumer"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
)

type fakeFollowers struct {
	followers map[string][]string
	err       error
}

func (f *fakeFollowers) Followers(_ context.Context, authorID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.followers[authorID], nil
}

type fakeFeedWriter struct {
	mu      sync.Mutex
	entries map[string]domain.FeedEntry // keyed by recipient+content
	err     error
}

func newFakeFeedWriter() *fakeFeedWriter {
	return &fakeFeedWriter{entries: make(map[string]domain.FeedEntry)}
}

func (f *fakeFeedWriter) Upsert(_ context.Context, entry domain.FeedEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return false, f.err
	}
	key := entry.RecipientID + "/" + entry.ContentID
	if _, ok := f.entries[key]; ok {
		return false, nil
	}
	f.entries[key] = entry
	return true, nil
}

func (f *fakeFeedWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeSearchWriter struct {
	docs map[string]domain.SearchDocument
	err  error
}

func newFakeSearchWriter() *fakeSearchWriter {
	return &fakeSearchWriter{docs: make(map[string]domain.SearchDocument)}
}

func (f *fakeSearchWriter) Upsert(_ context.Context, doc domain.SearchDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs[doc.ContentID] = doc
	return nil
}

type streamFixture struct {
	client   *broker.StreamsClient
	producer *broker.Producer
	redis    *redis.Client
}

func newStreamFixture(t *testing.T) streamFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := broker.NewStreamsClientFromRedis(rdb, broker.CreationStream)
	return streamFixture{
		client:   client,
		producer: broker.NewProducer(client, broker.ProducerConfig{}),
		redis:    rdb,
	}
}

func newWorker(t *testing.T, fx streamFixture, group string, handler consumer.Handler) (*consumer.Worker, *broker.Consumer) {
	t.Helper()

	cons, err := broker.NewConsumer(fx.client, broker.ConsumerConfig{
		ConsumerGroup: group,
		ConsumerID:    "worker-1",
		BlockTimeout:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	if err := cons.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	return consumer.NewWorker(cons, handler, nil, logger.Nop()), cons
}

func publishEvent(t *testing.T, fx streamFixture, contentID string) domain.CreationEvent {
	t.Helper()

	event := domain.CreationEvent{
		ContentID: contentID,
		AuthorID:  "author-1",
		Body:      "hello followers",
		CreatedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if _, err := fx.producer.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	return event
}

func TestFeedMaterializerWritesEntryPerFollower(t *testing.T) {
	fx := newStreamFixture(t)
	feeds := newFakeFeedWriter()
	handler := consumer.NewFeedMaterializer(
		&fakeFollowers{followers: map[string][]string{"author-1": {"user-2", "user-3"}}},
		feeds, nil, logger.Nop(),
	)
	worker, cons := newWorker(t, fx, "feed-materializer", handler)

	event := publishEvent(t, fx, "content-1")

	if err := worker.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if len(feeds.entries) != 2 {
		t.Fatalf("feed entries = %d, want 2", len(feeds.entries))
	}
	entry := feeds.entries["user-2/content-1"]
	if entry.AuthorID != event.AuthorID || entry.Body != event.Body {
		t.Errorf("entry = %+v does not carry event fields", entry)
	}

	pending, err := cons.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if pending != 0 {
		t.Errorf("pending = %d after successful processing, want 0", pending)
	}
}

func TestFeedMaterializerIsIdempotentAcrossRedelivery(t *testing.T) {
	fx := newStreamFixture(t)
	feeds := newFakeFeedWriter()
	followers := &fakeFollowers{followers: map[string][]string{"author-1": {"user-2"}}}

	handler := consumer.NewFeedMaterializer(followers, feeds, nil, logger.Nop())

	event := publishEvent(t, fx, "content-1")

	// Two deliveries of the same logical event.
	if err := handler.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := handler.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() replay error = %v", err)
	}

	if len(feeds.entries) != 1 {
		t.Errorf("feed entries = %d after replay, want 1", len(feeds.entries))
	}
}

func TestFeedMaterializerLeavesMessagePendingOnRecipientFailure(t *testing.T) {
	fx := newStreamFixture(t)
	handler := consumer.NewFeedMaterializer(
		&fakeFollowers{err: domain.ErrUpstreamUnavailable},
		newFakeFeedWriter(), nil, logger.Nop(),
	)
	worker, cons := newWorker(t, fx, "feed-materializer", handler)

	publishEvent(t, fx, "content-1")

	if err := worker.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	pending, err := cons.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if pending != 1 {
		t.Errorf("pending = %d after transient failure, want 1 for redelivery", pending)
	}
}

func TestWorkerSkipsAndAcksMalformedEvent(t *testing.T) {
	fx := newStreamFixture(t)
	feeds := newFakeFeedWriter()
	handler := consumer.NewFeedMaterializer(
		&fakeFollowers{followers: map[string][]string{"author-1": {"user-2"}}},
		feeds, nil, logger.Nop(),
	)
	worker, cons := newWorker(t, fx, "feed-materializer", handler)

	// Not produced by the producer: a raw message with a broken payload.
	err := fx.redis.XAdd(context.Background(), &redis.XAddArgs{
		Stream: broker.CreationStream,
		Values: map[string]any{broker.EventField: "{not json"},
	}).Err()
	if err != nil {
		t.Fatalf("XAdd() error = %v", err)
	}

	if err := worker.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if len(feeds.entries) != 0 {
		t.Errorf("feed entries = %d from malformed event, want 0", len(feeds.entries))
	}
	pending, err := cons.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if pending != 0 {
		t.Errorf("pending = %d, want 0: malformed events are acked and skipped", pending)
	}
}

func TestSearchIndexerIndexesEvent(t *testing.T) {
	fx := newStreamFixture(t)
	index := newFakeSearchWriter()
	worker, cons := newWorker(t, fx, "search-indexer", consumer.NewSearchIndexer(index, logger.Nop()))

	event := publishEvent(t, fx, "content-1")

	if err := worker.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	doc, ok := index.docs["content-1"]
	if !ok {
		t.Fatal("document not indexed")
	}
	if doc.Body != event.Body || doc.AuthorID != event.AuthorID {
		t.Errorf("document = %+v does not carry event fields", doc)
	}

	pending, _ := cons.PendingCount(context.Background())
	if pending != 0 {
		t.Errorf("pending = %d, want 0", pending)
	}
}

func TestSearchIndexerLeavesMessagePendingOnIndexFailure(t *testing.T) {
	fx := newStreamFixture(t)
	index := newFakeSearchWriter()
	index.err = errors.New("index unavailable")
	worker, cons := newWorker(t, fx, "search-indexer", consumer.NewSearchIndexer(index, logger.Nop()))

	publishEvent(t, fx, "content-1")

	if err := worker.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	pending, _ := cons.PendingCount(context.Background())
	if pending != 1 {
		t.Errorf("pending = %d after index failure, want 1 for redelivery", pending)
	}
}

func TestWorkerStartAndStop(t *testing.T) {
	fx := newStreamFixture(t)
	feeds := newFakeFeedWriter()
	handler := consumer.NewFeedMaterializer(
		&fakeFollowers{followers: map[string][]string{"author-1": {"user-2"}}},
		feeds, nil, logger.Nop(),
	)

	cons, err := broker.NewConsumer(fx.client, broker.ConsumerConfig{
		ConsumerGroup: "feed-materializer",
		ConsumerID:    "worker-1",
		BlockTimeout:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	worker := consumer.NewWorker(cons, handler, nil, logger.Nop())

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !worker.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	publishEvent(t, fx, "content-1")

	deadline := time.After(2 * time.Second)
	for feeds.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("event not processed before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	worker.Stop()
}
