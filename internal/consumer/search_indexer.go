package consumer

import (
	"context"
	"fmt"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
)

// SearchWriter upserts content documents into the search index.
type SearchWriter interface {
	Upsert(ctx context.Context, doc domain.SearchDocument) error
}

// SearchIndexer makes content searchable. The index write is keyed by
// content ID, so a redelivered event overwrites rather than duplicates.
type SearchIndexer struct {
	index  SearchWriter
	logger logger.Logger
}

// NewSearchIndexer creates the indexing handler.
func NewSearchIndexer(index SearchWriter, log logger.Logger) *SearchIndexer {
	return &SearchIndexer{index: index, logger: log}
}

// Name identifies the consumer group member in logs and metrics.
func (s *SearchIndexer) Name() string { return "search-indexer" }

// Handle indexes the event's content.
func (s *SearchIndexer) Handle(ctx context.Context, event domain.CreationEvent) error {
	doc := domain.SearchDocument{
		ContentID: event.ContentID,
		AuthorID:  event.AuthorID,
		Body:      event.Body,
		CreatedAt: event.CreatedAt,
	}
	if err := s.index.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("index content %s: %w", event.ContentID, err)
	}

	s.logger.Debug("event indexed", logger.String("content_id", event.ContentID))
	return nil
}
