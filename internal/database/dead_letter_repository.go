package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
)

// DeadLetterRepository owns the dead-letter record set: creation
// events that exhausted their publish budget or hit an open breaker.
// Records are write-once and append-only; the pipeline never reads
// them back, they exist for offline reconciliation.
type DeadLetterRepository struct {
	db *sqlx.DB
}

// NewDeadLetterRepository creates a new repository.
func NewDeadLetterRepository(db *sqlx.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Append records an undeliverable event.
func (r *DeadLetterRepository) Append(ctx context.Context, entry domain.DeadLetterEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letter_events
			(content_id, author_id, body, created_at, failure_reason, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ContentID, entry.AuthorID, entry.Body, entry.CreatedAt,
		entry.FailureReason, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("append dead letter: %w", err)
	}
	return nil
}

// Count returns the total number of dead-letter records.
func (r *DeadLetterRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM dead_letter_events`)
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return count, nil
}

// List returns the most recent dead-letter records, for manual replay
// tooling.
func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]domain.DeadLetterEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	entries := []domain.DeadLetterEvent{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, content_id, author_id, body, created_at, failure_reason, recorded_at
		FROM dead_letter_events
		ORDER BY recorded_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return entries, nil
}
