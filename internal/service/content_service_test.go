package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arunpatilgithub/twitter-microservices/internal/breaker"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/service"
)

type fakeDirectory struct {
	users     map[string]bool
	counts    map[string]int
	following map[string][]string

	existsErr    error
	countErr     error
	followingErr error
}

func (f *fakeDirectory) Exists(_ context.Context, userID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.users[userID], nil
}

func (f *fakeDirectory) FollowerCount(_ context.Context, authorID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[authorID], nil
}

func (f *fakeDirectory) Following(_ context.Context, userID string) ([]string, error) {
	if f.followingErr != nil {
		return nil, f.followingErr
	}
	return f.following[userID], nil
}

type fakeContentStore struct {
	items     map[string]domain.ContentItem
	insertErr error
	listErr   map[string]error
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{items: make(map[string]domain.ContentItem)}
}

func (f *fakeContentStore) Insert(_ context.Context, item domain.ContentItem) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.items[item.ID] = item
	return nil
}

func (f *fakeContentStore) GetByID(_ context.Context, id string) (domain.ContentItem, error) {
	item, ok := f.items[id]
	if !ok {
		return domain.ContentItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (f *fakeContentStore) ListByAuthor(_ context.Context, authorID string) ([]domain.ContentItem, error) {
	if err := f.listErr[authorID]; err != nil {
		return nil, err
	}
	var out []domain.ContentItem
	for _, item := range f.items {
		if item.AuthorID == authorID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeContentStore) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakePublisher struct {
	events []domain.CreationEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event domain.CreationEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeCache struct {
	items []domain.ContentItem
	err   error
}

func (f *fakeCache) Set(_ context.Context, item domain.ContentItem) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, item)
	return nil
}

func newBreaker() *breaker.Breaker {
	return breaker.New(breaker.Config{WindowSize: 100, FailureThreshold: 0.99, ResetTimeout: time.Minute})
}

type writePathFixture struct {
	svc       *service.ContentService
	store     *fakeContentStore
	directory *fakeDirectory
	cache     *fakeCache
	publisher *fakePublisher
}

func newWritePath(directory *fakeDirectory) writePathFixture {
	store := newFakeContentStore()
	cache := &fakeCache{}
	pub := &fakePublisher{}
	svc := service.NewContentService(
		store, directory, newBreaker(), cache, pub,
		domain.DefaultFanoutThreshold, nil, logger.Nop(),
	)
	return writePathFixture{svc: svc, store: store, directory: directory, cache: cache, publisher: pub}
}

func TestCreateContentPushStrategy(t *testing.T) {
	fx := newWritePath(&fakeDirectory{
		users:  map[string]bool{"user-1": true},
		counts: map[string]int{"user-1": 3},
	})

	item, err := fx.svc.CreateContent(context.Background(), "user-1", "hello world")
	if err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}
	if item.ID == "" {
		t.Error("CreateContent() assigned no ID")
	}
	if item.AuthorID != "user-1" || item.Body != "hello world" {
		t.Errorf("CreateContent() = %+v", item)
	}

	if _, ok := fx.store.items[item.ID]; !ok {
		t.Error("content not persisted to canonical store")
	}
	if len(fx.cache.items) != 1 {
		t.Errorf("cache writes = %d, want 1 under push", len(fx.cache.items))
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].ContentID != item.ID {
		t.Errorf("published events = %+v", fx.publisher.events)
	}
}

func TestCreateContentPullStrategySkipsCache(t *testing.T) {
	fx := newWritePath(&fakeDirectory{
		users:  map[string]bool{"user-1": true},
		counts: map[string]int{"user-1": domain.DefaultFanoutThreshold},
	})

	if _, err := fx.svc.CreateContent(context.Background(), "user-1", "popular author"); err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}
	if len(fx.cache.items) != 0 {
		t.Errorf("cache writes = %d, want 0 under pull", len(fx.cache.items))
	}
	if len(fx.publisher.events) != 1 {
		t.Errorf("published events = %d, want 1", len(fx.publisher.events))
	}
}

func TestCreateContentUnknownAuthor(t *testing.T) {
	fx := newWritePath(&fakeDirectory{users: map[string]bool{}})

	_, err := fx.svc.CreateContent(context.Background(), "ghost", "hello")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("CreateContent() error = %v, want ErrValidation", err)
	}
	if len(fx.store.items) != 0 {
		t.Error("content persisted for unknown author")
	}
	if len(fx.publisher.events) != 0 {
		t.Error("event published for unknown author")
	}
}

func TestCreateContentDirectoryUnavailable(t *testing.T) {
	fx := newWritePath(&fakeDirectory{existsErr: domain.ErrUpstreamUnavailable})

	_, err := fx.svc.CreateContent(context.Background(), "user-1", "hello")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("CreateContent() error = %v, want ErrUpstreamUnavailable", err)
	}
	if len(fx.store.items) != 0 {
		t.Error("content persisted despite failed author validation")
	}
}

func TestCreateContentOpenBreakerMapsToUpstreamUnavailable(t *testing.T) {
	directory := &fakeDirectory{users: map[string]bool{"user-1": true}}
	store := newFakeContentStore()
	brk := breaker.New(breaker.Config{WindowSize: 2, FailureThreshold: 0.4, ResetTimeout: time.Minute})
	boom := errors.New("directory down")
	for i := 0; i < 2; i++ {
		_ = brk.Execute(context.Background(), func(context.Context) error { return boom })
	}

	svc := service.NewContentService(
		store, directory, brk, &fakeCache{}, &fakePublisher{},
		domain.DefaultFanoutThreshold, nil, logger.Nop(),
	)

	_, err := svc.CreateContent(context.Background(), "user-1", "hello")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("CreateContent() error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestCreateContentFollowerCountFailureDegradesToPull(t *testing.T) {
	fx := newWritePath(&fakeDirectory{
		users:    map[string]bool{"user-1": true},
		countErr: errors.New("directory timeout"),
	})

	item, err := fx.svc.CreateContent(context.Background(), "user-1", "still works")
	if err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}
	if len(fx.cache.items) != 0 {
		t.Error("cache written despite degraded pull strategy")
	}
	if _, ok := fx.store.items[item.ID]; !ok {
		t.Error("content not persisted")
	}
}

func TestCreateContentPublishFailureDoesNotFailCreate(t *testing.T) {
	fx := newWritePath(&fakeDirectory{
		users:  map[string]bool{"user-1": true},
		counts: map[string]int{"user-1": 1},
	})
	fx.publisher.err = domain.ErrPublishExhausted

	item, err := fx.svc.CreateContent(context.Background(), "user-1", "durable anyway")
	if err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}
	if _, ok := fx.store.items[item.ID]; !ok {
		t.Error("content not persisted")
	}
}

func TestCreateContentValidation(t *testing.T) {
	fx := newWritePath(&fakeDirectory{users: map[string]bool{"user-1": true}})

	longBody := make([]byte, service.MaxBodyLength+1)
	for i := range longBody {
		longBody[i] = 'a'
	}

	testCases := []struct {
		name     string
		authorID string
		body     string
	}{
		{name: "empty author", authorID: "", body: "hello"},
		{name: "empty body", authorID: "user-1", body: "   "},
		{name: "body too long", authorID: "user-1", body: string(longBody)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.CreateContent(context.Background(), tc.authorID, tc.body)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("CreateContent() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDeleteContentCanonicalOnly(t *testing.T) {
	fx := newWritePath(&fakeDirectory{
		users:  map[string]bool{"user-1": true},
		counts: map[string]int{"user-1": 1},
	})

	item, err := fx.svc.CreateContent(context.Background(), "user-1", "short lived")
	if err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}

	if err := fx.svc.DeleteContent(context.Background(), item.ID); err != nil {
		t.Fatalf("DeleteContent() error = %v", err)
	}
	if _, err := fx.svc.GetContent(context.Background(), item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetContent() after delete error = %v, want ErrNotFound", err)
	}
	// The cached copy stays until its TTL expires.
	if len(fx.cache.items) != 1 {
		t.Errorf("cache entries = %d, want 1 after canonical delete", len(fx.cache.items))
	}
}

func TestDeleteContentNotFound(t *testing.T) {
	fx := newWritePath(&fakeDirectory{})

	if err := fx.svc.DeleteContent(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DeleteContent() error = %v, want ErrNotFound", err)
	}
}
