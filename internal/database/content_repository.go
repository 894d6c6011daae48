package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
)

// ContentRepository owns the canonical content store.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Insert persists a content item.
func (r *ContentRepository) Insert(ctx context.Context, item domain.ContentItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO content (id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4)`,
		item.ID, item.AuthorID, item.Body, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// GetByID returns a content item by ID.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (domain.ContentItem, error) {
	var item domain.ContentItem
	err := r.db.GetContext(ctx, &item, `
		SELECT id, author_id, body, created_at
		FROM content
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ContentItem{}, fmt.Errorf("%w: content %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

// ListByAuthor returns an author's content, newest first. Serves the
// content-source surface the pull-path aggregator reads.
func (r *ContentRepository) ListByAuthor(ctx context.Context, authorID string) ([]domain.ContentItem, error) {
	items := []domain.ContentItem{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, author_id, body, created_at
		FROM content
		WHERE author_id = $1
		ORDER BY created_at DESC`, authorID)
	if err != nil {
		return nil, fmt.Errorf("list content by author: %w", err)
	}
	return items, nil
}

// Delete removes a content item from the canonical store. Derived
// copies in the feed store, search index, and cache are left to age
// out; only the source of truth is retracted synchronously.
func (r *ContentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM content WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete content rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: content %s", domain.ErrNotFound, id)
	}
	return nil
}
