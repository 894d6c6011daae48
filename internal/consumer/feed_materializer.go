package consumer

import (
	"context"
	"fmt"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/metrics"
)

// FollowerSource resolves the recipients of a creation event.
type FollowerSource interface {
	Followers(ctx context.Context, authorID string) ([]string, error)
}

// FeedWriter stores materialized feed entries. Upsert reports whether a
// new row was written; replays of the same (recipient, content) pair
// report false.
type FeedWriter interface {
	Upsert(ctx context.Context, entry domain.FeedEntry) (bool, error)
}

// FeedMaterializer writes one feed entry per follower of the event's
// author. Recipients are the author's followers; the author does not
// receive their own content.
type FeedMaterializer struct {
	followers FollowerSource
	feeds     FeedWriter
	metrics   *metrics.Metrics
	logger    logger.Logger
}

// NewFeedMaterializer creates the feed materializing handler.
func NewFeedMaterializer(followers FollowerSource, feeds FeedWriter, m *metrics.Metrics, log logger.Logger) *FeedMaterializer {
	return &FeedMaterializer{
		followers: followers,
		feeds:     feeds,
		metrics:   m,
		logger:    log,
	}
}

// Name identifies the consumer group member in logs and metrics.
func (f *FeedMaterializer) Name() string { return "feed-materializer" }

// Handle fans the event out to every follower's feed. A failure to
// resolve recipients, or to write any entry, returns an error so the
// whole event is redelivered; already-written entries are absorbed by
// the upsert on replay.
func (f *FeedMaterializer) Handle(ctx context.Context, event domain.CreationEvent) error {
	recipients, err := f.followers.Followers(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("resolve recipients for %s: %w", event.ContentID, err)
	}

	inserted := 0
	for _, recipientID := range recipients {
		entry := domain.FeedEntry{
			RecipientID: recipientID,
			ContentID:   event.ContentID,
			AuthorID:    event.AuthorID,
			Body:        event.Body,
			CreatedAt:   event.CreatedAt,
		}
		wrote, upsertErr := f.feeds.Upsert(ctx, entry)
		if upsertErr != nil {
			return fmt.Errorf("materialize feed entry for %s: %w", recipientID, upsertErr)
		}
		if wrote {
			inserted++
		}
	}

	if f.metrics != nil {
		f.metrics.FeedEntriesStored.Add(float64(inserted))
	}

	f.logger.Debug("event materialized",
		logger.String("content_id", event.ContentID),
		logger.Int("recipients", len(recipients)),
		logger.Int("new_entries", inserted),
	)
	return nil
}
