package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/service"
)

type fakeFeedStore struct {
	entries   map[string][]domain.FeedEntry
	gotLimit  int
	returnErr error
}

func (f *fakeFeedStore) GetFeed(_ context.Context, userID string, limit int) ([]domain.FeedEntry, error) {
	f.gotLimit = limit
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	return f.entries[userID], nil
}

func seedContent(store *fakeContentStore, id, authorID, body string, createdAt time.Time) {
	store.items[id] = domain.ContentItem{ID: id, AuthorID: authorID, Body: body, CreatedAt: createdAt}
}

func TestGetFeedReturnsMaterializedEntries(t *testing.T) {
	feeds := &fakeFeedStore{entries: map[string][]domain.FeedEntry{
		"user-1": {
			{RecipientID: "user-1", ContentID: "content-2"},
			{RecipientID: "user-1", ContentID: "content-1"},
		},
	}}
	svc := service.NewFeedService(feeds, newFakeContentStore(), &fakeDirectory{}, newBreaker(), logger.Nop())

	entries, err := svc.GetFeed(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("GetFeed() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("GetFeed() returned %d entries, want 2", len(entries))
	}
	if feeds.gotLimit <= 0 {
		t.Errorf("GetFeed() passed limit %d, want a positive default", feeds.gotLimit)
	}
}

func TestGetFeedRequiresUserID(t *testing.T) {
	svc := service.NewFeedService(&fakeFeedStore{}, newFakeContentStore(), &fakeDirectory{}, newBreaker(), logger.Nop())

	if _, err := svc.GetFeed(context.Background(), " ", 10); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("GetFeed() error = %v, want ErrValidation", err)
	}
}

func TestGetFeedByPullMergesAndSortsNewestFirst(t *testing.T) {
	contents := newFakeContentStore()
	seedContent(contents, "1", "author-a", "hi", time.Unix(100, 0))
	seedContent(contents, "2", "author-b", "yo", time.Unix(200, 0))

	directory := &fakeDirectory{following: map[string][]string{
		"user-u": {"author-a", "author-b"},
	}}
	svc := service.NewFeedService(&fakeFeedStore{}, contents, directory, newBreaker(), logger.Nop())

	items, err := svc.GetFeedByPull(context.Background(), "user-u", 10)
	if err != nil {
		t.Fatalf("GetFeedByPull() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("GetFeedByPull() returned %d items, want 2", len(items))
	}
	if items[0].ID != "2" || items[1].ID != "1" {
		t.Errorf("GetFeedByPull() order = [%s, %s], want [2, 1]", items[0].ID, items[1].ID)
	}
}

func TestGetFeedByPullDirectoryFailureYieldsEmptyFeed(t *testing.T) {
	directory := &fakeDirectory{followingErr: domain.ErrUpstreamUnavailable}
	svc := service.NewFeedService(&fakeFeedStore{}, newFakeContentStore(), directory, newBreaker(), logger.Nop())

	items, err := svc.GetFeedByPull(context.Background(), "user-u", 10)
	if err != nil {
		t.Fatalf("GetFeedByPull() error = %v, want nil on directory failure", err)
	}
	if len(items) != 0 {
		t.Errorf("GetFeedByPull() returned %d items, want 0", len(items))
	}
}

func TestGetFeedByPullIsolatesFolloweeFailures(t *testing.T) {
	contents := newFakeContentStore()
	seedContent(contents, "1", "author-a", "hi", time.Unix(100, 0))
	contents.listErr = map[string]error{"author-b": errors.New("storage error")}

	directory := &fakeDirectory{following: map[string][]string{
		"user-u": {"author-a", "author-b"},
	}}
	svc := service.NewFeedService(&fakeFeedStore{}, contents, directory, newBreaker(), logger.Nop())

	items, err := svc.GetFeedByPull(context.Background(), "user-u", 10)
	if err != nil {
		t.Fatalf("GetFeedByPull() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "1" {
		t.Errorf("GetFeedByPull() = %+v, want only author-a's item", items)
	}
}

func TestGetFeedByPullHonorsLimit(t *testing.T) {
	contents := newFakeContentStore()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		seedContent(contents, id, "author-a", "post", time.Unix(int64(100+i), 0))
	}

	directory := &fakeDirectory{following: map[string][]string{
		"user-u": {"author-a"},
	}}
	svc := service.NewFeedService(&fakeFeedStore{}, contents, directory, newBreaker(), logger.Nop())

	items, err := svc.GetFeedByPull(context.Background(), "user-u", 3)
	if err != nil {
		t.Fatalf("GetFeedByPull() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("GetFeedByPull() returned %d items, want 3", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.After(items[i-1].CreatedAt) {
			t.Errorf("items out of order at %d", i)
		}
	}
}
