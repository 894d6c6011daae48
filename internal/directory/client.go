// Package directory provides the HTTP client for the user-directory
// collaborator, which owns identity and the follow graph.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
)

const defaultTimeout = 5 * time.Second

// Config holds directory client configuration.
type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client calls the directory service over HTTP. Failures are mapped to
// the service error taxonomy: 404 means the entity does not exist,
// anything else that is not a 200 means the upstream is unavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a directory client.
func NewClient(cfg Config, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

type countResponse struct {
	Count int `json:"count"`
}

// Exists reports whether a user exists in the directory.
func (c *Client) Exists(ctx context.Context, userID string) (bool, error) {
	url := fmt.Sprintf("%s/users/%s", c.baseURL, userID)

	resp, err := c.get(ctx, url)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: directory returned status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}
}

// FollowerCount returns the number of followers for an author.
func (c *Client) FollowerCount(ctx context.Context, authorID string) (int, error) {
	url := fmt.Sprintf("%s/users/%s/followers/count", c.baseURL, authorID)

	var out countResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Followers returns the set of user IDs following the author.
func (c *Client) Followers(ctx context.Context, authorID string) ([]string, error) {
	url := fmt.Sprintf("%s/users/%s/followers", c.baseURL, authorID)

	var out []string
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Following returns the set of user IDs the user follows.
func (c *Client) Following(ctx context.Context, userID string) ([]string, error) {
	url := fmt.Sprintf("%s/users/%s/following", c.baseURL, userID)

	var out []string
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("directory request failed",
			logger.String("url", url),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("directory returned non-OK status",
			logger.String("url", url),
			logger.Int("status_code", resp.StatusCode),
		)
		return fmt.Errorf("%w: directory returned status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}
