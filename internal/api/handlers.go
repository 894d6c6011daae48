// Package api exposes the fanout service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
)

// ContentAPI is the write-path surface consumed by the handlers.
type ContentAPI interface {
	CreateContent(ctx context.Context, authorID, body string) (domain.ContentItem, error)
	GetContent(ctx context.Context, id string) (domain.ContentItem, error)
	ListContentByAuthor(ctx context.Context, authorID string) ([]domain.ContentItem, error)
	DeleteContent(ctx context.Context, id string) error
}

// FeedAPI is the read-path surface consumed by the handlers.
type FeedAPI interface {
	GetFeed(ctx context.Context, userID string, limit int) ([]domain.FeedEntry, error)
	GetFeedByPull(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error)
}

// Searcher runs full-text queries over indexed content.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchDocument, error)
}

// Handler holds the HTTP request handlers.
type Handler struct {
	contents ContentAPI
	feeds    FeedAPI
	searcher Searcher
	logger   logger.Logger
}

// NewHandler creates a handler instance.
func NewHandler(contents ContentAPI, feeds FeedAPI, searcher Searcher, log logger.Logger) *Handler {
	return &Handler{
		contents: contents,
		feeds:    feeds,
		searcher: searcher,
		logger:   log,
	}
}

type createContentRequest struct {
	AuthorID string `json:"author_id" binding:"required"`
	Body     string `json:"body"      binding:"required"`
}

// ErrorResponse is the error payload for all endpoints.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateContent handles POST /api/v1/content.
func (h *Handler) CreateContent(c *gin.Context) {
	var req createContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid request body: " + err.Error(),
			Code:      "INVALID_REQUEST",
			Timestamp: time.Now(),
		})
		return
	}

	item, err := h.contents.CreateContent(c.Request.Context(), req.AuthorID, req.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// GetContent handles GET /api/v1/content/:id.
func (h *Handler) GetContent(c *gin.Context) {
	item, err := h.contents.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteContent handles DELETE /api/v1/content/:id.
func (h *Handler) DeleteContent(c *gin.Context) {
	if err := h.contents.DeleteContent(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAuthorContent handles GET /api/v1/authors/:id/content.
func (h *Handler) ListAuthorContent(c *gin.Context) {
	items, err := h.contents.ListContentByAuthor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []domain.ContentItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetFeed handles GET /api/v1/feed/:userID, the materialized read path.
func (h *Handler) GetFeed(c *gin.Context) {
	entries, err := h.feeds.GetFeed(c.Request.Context(), c.Param("userID"), limitParam(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []domain.FeedEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetFeedByPull handles GET /api/v1/feed/:userID/pull, the on-demand
// aggregation path.
func (h *Handler) GetFeedByPull(c *gin.Context) {
	items, err := h.feeds.GetFeedByPull(c.Request.Context(), c.Param("userID"), limitParam(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []domain.ContentItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Search handles GET /api/v1/search?q=...
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "query parameter q is required",
			Code:      "VALIDATION_ERROR",
			Timestamp: time.Now(),
		})
		return
	}

	docs, err := h.searcher.Search(c.Request.Context(), query, limitParam(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

func limitParam(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			return limit
		}
	}
	return 0
}

// respondError maps the service error taxonomy onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
		code = "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		code = "NOT_FOUND"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status = http.StatusServiceUnavailable
		code = "UPSTREAM_UNAVAILABLE"
	default:
		h.logger.Error("request failed",
			logger.String("path", c.FullPath()),
			logger.Error(err),
		)
	}

	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		Timestamp: time.Now(),
	})
}
