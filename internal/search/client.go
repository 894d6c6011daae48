// Package search provides the Elasticsearch-backed index over published
// content, written by the indexing consumer and read by the query path.
package search

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
)

// DefaultIndex is the index holding published content documents.
const DefaultIndex = "content"

const pingTimeout = 5 * time.Second

// Config holds Elasticsearch connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

// NewClient creates an Elasticsearch client and verifies the connection.
func NewClient(cfg Config) (*es.Client, error) {
	address := cfg.URL
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}

	clientConfig := es.Config{
		Addresses: []string{address},
	}
	if cfg.Username != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	client, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := ping(ctx, client); err != nil {
		return nil, fmt.Errorf("ping elasticsearch: %w", err)
	}

	return client, nil
}

func ping(ctx context.Context, client *es.Client) error {
	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch ping failed: %s", string(body))
	}
	return nil
}
