package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
)

// Index writes content documents keyed by content ID, so reprocessing a
// delivery overwrites the existing document instead of duplicating it.
type Index struct {
	client *es.Client
	index  string
	logger logger.Logger
}

// NewIndex creates a content index over the given client.
func NewIndex(client *es.Client, index string, log logger.Logger) *Index {
	if index == "" {
		index = DefaultIndex
	}
	return &Index{
		client: client,
		index:  index,
		logger: log,
	}
}

// Upsert indexes a content document under its content ID.
func (i *Index) Upsert(ctx context.Context, doc domain.SearchDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal search document: %w", err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(doc.ContentID),
	)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.ContentID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index document %s: %s", doc.ContentID, res.String())
	}

	i.logger.Debug("document indexed",
		logger.String("content_id", doc.ContentID),
		logger.String("index", i.index),
	)
	return nil
}

// Delete removes a content document from the index. A missing document
// is not an error: the delete may race the indexing consumer.
func (i *Index) Delete(ctx context.Context, contentID string) error {
	res, err := i.client.Delete(
		i.index,
		contentID,
		i.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", contentID, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete document %s: %s", contentID, res.String())
	}
	return nil
}

// Search runs a match query over content bodies. An unreachable or
// failing index degrades to empty results rather than an error so the
// read path stays available.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]domain.SearchDocument, error) {
	if limit <= 0 {
		limit = 20
	}

	searchBody := map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				"body": query,
			},
		},
		"size": limit,
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
		},
	}

	bodyBytes, err := json.Marshal(searchBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.index),
		i.client.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		i.logger.Warn("search unavailable, returning empty results",
			logger.String("query", query),
			logger.Error(err),
		)
		return []domain.SearchDocument{}, nil
	}
	defer res.Body.Close()

	if res.IsError() {
		i.logger.Warn("search returned error, returning empty results",
			logger.String("query", query),
			logger.Int("status_code", res.StatusCode),
		)
		return []domain.SearchDocument{}, nil
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source domain.SearchDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		i.logger.Warn("search response undecodable, returning empty results",
			logger.String("query", query),
			logger.Error(err),
		)
		return []domain.SearchDocument{}, nil
	}

	docs := make([]domain.SearchDocument, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}
