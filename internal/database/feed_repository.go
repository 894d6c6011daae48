package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
)

// DefaultFeedLimit bounds feed reads when the caller does not specify
// a limit.
const DefaultFeedLimit = 50

// FeedRepository owns the materialized per-user feed store.
type FeedRepository struct {
	db *sqlx.DB
}

// NewFeedRepository creates a new repository.
func NewFeedRepository(db *sqlx.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// Upsert writes a feed entry keyed by (recipient_id, content_id).
// Replays of the same event are no-ops: the transport delivers
// at-least-once, so this insert must be idempotent. Returns whether a
// new row was written.
func (r *FeedRepository) Upsert(ctx context.Context, entry domain.FeedEntry) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_entries (recipient_id, content_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recipient_id, content_id) DO NOTHING`,
		entry.RecipientID, entry.ContentID, entry.AuthorID, entry.Body, entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("upsert feed entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert feed entry rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetFeed returns a user's materialized feed, newest first.
func (r *FeedRepository) GetFeed(ctx context.Context, userID string, limit int) ([]domain.FeedEntry, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	entries := []domain.FeedEntry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT recipient_id, content_id, author_id, body, created_at
		FROM feed_entries
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return entries, nil
}
