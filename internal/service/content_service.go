// Package service implements the write path and the feed read paths
// over the storage, directory, and publishing layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arunpatilgithub/twitter-microservices/internal/breaker"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/metrics"
)

// MaxBodyLength bounds the size of a content body.
const MaxBodyLength = 280

// Directory reads the identity and follow graph owned by the directory
// collaborator.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	FollowerCount(ctx context.Context, authorID string) (int, error)
	Following(ctx context.Context, userID string) ([]string, error)
}

// ContentStore is the canonical content store.
type ContentStore interface {
	Insert(ctx context.Context, item domain.ContentItem) error
	GetByID(ctx context.Context, id string) (domain.ContentItem, error)
	ListByAuthor(ctx context.Context, authorID string) ([]domain.ContentItem, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher delivers creation events with its own resilience; a
// returned error means the event reached the dead-letter store.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.CreationEvent) error
}

// ContentCache is the hot-content cache written under the push strategy.
type ContentCache interface {
	Set(ctx context.Context, item domain.ContentItem) error
}

// ContentService implements the content write path.
type ContentService struct {
	store            ContentStore
	directory        Directory
	directoryBreaker *breaker.Breaker
	cache            ContentCache
	publisher        EventPublisher
	fanoutThreshold  int
	metrics          *metrics.Metrics
	logger           logger.Logger
}

// NewContentService creates the write-path service. The breaker guards
// directory lookups; broker publishing carries its own breaker inside
// the publisher.
func NewContentService(
	store ContentStore,
	dir Directory,
	directoryBreaker *breaker.Breaker,
	cache ContentCache,
	pub EventPublisher,
	fanoutThreshold int,
	m *metrics.Metrics,
	log logger.Logger,
) *ContentService {
	if fanoutThreshold <= 0 {
		fanoutThreshold = domain.DefaultFanoutThreshold
	}
	return &ContentService{
		store:            store,
		directory:        dir,
		directoryBreaker: directoryBreaker,
		cache:            cache,
		publisher:        pub,
		fanoutThreshold:  fanoutThreshold,
		metrics:          m,
		logger:           log,
	}
}

// CreateContent validates the author, persists the content item, and
// kicks off fanout. The canonical write is the durability boundary:
// once it succeeds, cache and publish failures are contained and the
// item is still returned.
func (s *ContentService) CreateContent(ctx context.Context, authorID, body string) (domain.ContentItem, error) {
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return domain.ContentItem{}, fmt.Errorf("%w: author id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(body) == "" {
		return domain.ContentItem{}, fmt.Errorf("%w: body is required", domain.ErrValidation)
	}
	if len(body) > MaxBodyLength {
		return domain.ContentItem{}, fmt.Errorf("%w: body exceeds %d characters", domain.ErrValidation, MaxBodyLength)
	}

	// Author validation happens before anything persists. A directory
	// outage aborts the whole create rather than writing orphan content.
	var exists bool
	err := s.directoryBreaker.Execute(ctx, func(ctx context.Context) error {
		var lookupErr error
		exists, lookupErr = s.directory.Exists(ctx, authorID)
		return lookupErr
	})
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			return domain.ContentItem{}, fmt.Errorf("%w: directory lookups suspended", domain.ErrUpstreamUnavailable)
		}
		return domain.ContentItem{}, fmt.Errorf("validate author %s: %w", authorID, err)
	}
	if !exists {
		return domain.ContentItem{}, fmt.Errorf("%w: unknown author %s", domain.ErrValidation, authorID)
	}

	item := domain.ContentItem{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, item); err != nil {
		return domain.ContentItem{}, fmt.Errorf("persist content: %w", err)
	}

	strategy := s.decideStrategy(ctx, authorID)
	if s.metrics != nil {
		s.metrics.FanoutDecisions.WithLabelValues(strategy.String()).Inc()
	}

	s.logger.Info("content created",
		logger.String("content_id", item.ID),
		logger.String("author_id", authorID),
		logger.String("fanout_strategy", strategy.String()),
	)

	if strategy == domain.StrategyPush {
		// Best effort: the cache layer logs its own failures.
		_ = s.cache.Set(ctx, item)
	}

	if err := s.publisher.Publish(ctx, domain.NewCreationEvent(item)); err != nil {
		// Content is durable; the event is now the dead-letter path's
		// responsibility.
		s.logger.Warn("creation event not published",
			logger.String("content_id", item.ID),
			logger.Error(err),
		)
	}

	return item, nil
}

// decideStrategy picks push or pull from the author's follower count. A
// count lookup failure degrades to pull: no eager cache work, readers
// fall back to on-demand aggregation.
func (s *ContentService) decideStrategy(ctx context.Context, authorID string) domain.Strategy {
	var count int
	err := s.directoryBreaker.Execute(ctx, func(ctx context.Context) error {
		var countErr error
		count, countErr = s.directory.FollowerCount(ctx, authorID)
		return countErr
	})
	if err != nil {
		s.logger.Warn("follower count unavailable, degrading to pull",
			logger.String("author_id", authorID),
			logger.Error(err),
		)
		return domain.StrategyPull
	}

	return domain.Decide(count, s.fanoutThreshold)
}

// GetContent returns a content item from the canonical store.
func (s *ContentService) GetContent(ctx context.Context, id string) (domain.ContentItem, error) {
	if strings.TrimSpace(id) == "" {
		return domain.ContentItem{}, fmt.Errorf("%w: content id is required", domain.ErrValidation)
	}
	return s.store.GetByID(ctx, id)
}

// ListContentByAuthor returns an author's content, newest first.
func (s *ContentService) ListContentByAuthor(ctx context.Context, authorID string) ([]domain.ContentItem, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, fmt.Errorf("%w: author id is required", domain.ErrValidation)
	}
	return s.store.ListByAuthor(ctx, authorID)
}

// DeleteContent removes a content item from the canonical store only.
// Feed, search, and cache copies go stale and converge on their own;
// they are not retracted synchronously.
func (s *ContentService) DeleteContent(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: content id is required", domain.ErrValidation)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("content deleted", logger.String("content_id", id))
	return nil
}
