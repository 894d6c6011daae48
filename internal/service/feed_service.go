package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/arunpatilgithub/twitter-microservices/internal/breaker"
	"github.com/arunpatilgithub/twitter-microservices/internal/database"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
)

// FeedStore reads materialized feed entries.
type FeedStore interface {
	GetFeed(ctx context.Context, userID string, limit int) ([]domain.FeedEntry, error)
}

// ContentSource lists a single author's content for the pull path.
type ContentSource interface {
	ListByAuthor(ctx context.Context, authorID string) ([]domain.ContentItem, error)
}

// FeedService serves feeds from the materialized store or by on-demand
// aggregation over the follow graph.
type FeedService struct {
	feeds            FeedStore
	contents         ContentSource
	directory        Directory
	directoryBreaker *breaker.Breaker
	logger           logger.Logger
}

// NewFeedService creates the feed read service.
func NewFeedService(
	feeds FeedStore,
	contents ContentSource,
	dir Directory,
	directoryBreaker *breaker.Breaker,
	log logger.Logger,
) *FeedService {
	return &FeedService{
		feeds:            feeds,
		contents:         contents,
		directory:        dir,
		directoryBreaker: directoryBreaker,
		logger:           log,
	}
}

// GetFeed returns the user's materialized feed, newest first.
func (s *FeedService) GetFeed(ctx context.Context, userID string, limit int) ([]domain.FeedEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = database.DefaultFeedLimit
	}
	return s.feeds.GetFeed(ctx, userID, limit)
}

// GetFeedByPull aggregates the user's feed on demand: fetch the follow
// list, collect each followee's content, merge, and sort newest first.
// An unreachable directory yields an empty feed rather than an error,
// and a failure against one followee never discards the others.
func (s *FeedService) GetFeedByPull(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = database.DefaultFeedLimit
	}

	var following []string
	err := s.directoryBreaker.Execute(ctx, func(ctx context.Context) error {
		var dirErr error
		following, dirErr = s.directory.Following(ctx, userID)
		return dirErr
	})
	if err != nil {
		s.logger.Warn("follow list unavailable, serving empty feed",
			logger.String("user_id", userID),
			logger.Error(err),
		)
		return []domain.ContentItem{}, nil
	}

	items := make([]domain.ContentItem, 0, len(following))
	for _, followeeID := range following {
		followeeItems, listErr := s.contents.ListByAuthor(ctx, followeeID)
		if listErr != nil {
			s.logger.Warn("skipping followee content",
				logger.String("user_id", userID),
				logger.String("followee_id", followeeID),
				logger.Error(listErr),
			)
			continue
		}
		items = append(items, followeeItems...)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
