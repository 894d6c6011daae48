// Package domain contains the core domain models for the fanout service.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentItem is the canonical record of a published piece of content.
// Immutable once created except for deletion.
type ContentItem struct {
	ID        string    `db:"id"         json:"id"`
	AuthorID  string    `db:"author_id"  json:"author_id"`
	Body      string    `db:"body"       json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreationEvent is the wire payload published to the broker when a
// content item has been durably written.
type CreationEvent struct {
	ContentID string    `json:"content_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCreationEvent builds the event for a persisted content item.
func NewCreationEvent(item ContentItem) CreationEvent {
	return CreationEvent{
		ContentID: item.ID,
		AuthorID:  item.AuthorID,
		Body:      item.Body,
		CreatedAt: item.CreatedAt,
	}
}

// ParseCreationEvent deserializes an event payload. A payload that does
// not decode, or decodes without a content ID, is malformed; consumers
// log and skip it rather than failing their loop.
func ParseCreationEvent(data []byte) (CreationEvent, error) {
	var ev CreationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return CreationEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ContentID == "" {
		return CreationEvent{}, fmt.Errorf("%w: missing content_id", ErrMalformedEvent)
	}
	return ev, nil
}

// FeedEntry is a materialized row in the per-user feed store. At most
// one entry exists per (recipient_id, content_id) pair.
type FeedEntry struct {
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	ContentID   string    `db:"content_id"   json:"content_id"`
	AuthorID    string    `db:"author_id"    json:"author_id"`
	Body        string    `db:"body"         json:"body"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}

// SearchDocument is the indexed representation of a content item,
// keyed by content ID.
type SearchDocument struct {
	ContentID string    `json:"content_id"`
	Body      string    `json:"body"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DeadLetterEvent records a creation event that could not be delivered
// to the broker. Entries are write-once and reserved for offline
// reconciliation; the pipeline never reads them back.
type DeadLetterEvent struct {
	ID            int64     `db:"id"`
	ContentID     string    `db:"content_id"`
	AuthorID      string    `db:"author_id"`
	Body          string    `db:"body"`
	CreatedAt     time.Time `db:"created_at"`
	FailureReason string    `db:"failure_reason"`
	RecordedAt    time.Time `db:"recorded_at"`
}

// NewDeadLetterEvent builds a dead-letter record preserving the
// original event fields.
func NewDeadLetterEvent(ev CreationEvent, reason string) DeadLetterEvent {
	return DeadLetterEvent{
		ContentID:     ev.ContentID,
		AuthorID:      ev.AuthorID,
		Body:          ev.Body,
		CreatedAt:     ev.CreatedAt,
		FailureReason: reason,
		RecordedAt:    time.Now().UTC(),
	}
}
