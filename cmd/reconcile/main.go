// Package main is the offline reconciliation tool for dead-lettered
// creation events. It lists the dead-letter queue, re-publishes events
// back onto the stream, and prunes read-side copies of content whose
// canonical row no longer exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arunpatilgithub/twitter-microservices/internal/broker"
	"github.com/arunpatilgithub/twitter-microservices/internal/cache"
	"github.com/arunpatilgithub/twitter-microservices/internal/config"
	"github.com/arunpatilgithub/twitter-microservices/internal/database"
	"github.com/arunpatilgithub/twitter-microservices/internal/domain"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/search"
)

const runTimeout = 2 * time.Minute

func main() {
	var (
		configPath string
		limit      int
		republish  bool
		prune      bool
	)
	flag.StringVar(&configPath, "config", "config.yml", "Path to configuration file")
	flag.IntVar(&limit, "limit", 100, "Maximum dead letter entries to process")
	flag.BoolVar(&republish, "republish", false, "Re-publish dead-lettered events onto the stream")
	flag.BoolVar(&prune, "prune", false, "Remove search and cache copies of deleted content")
	flag.Parse()

	if err := run(configPath, limit, republish, prune); err != nil {
		fmt.Fprintf(os.Stderr, "Reconciliation failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, limit int, republish, prune bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.Must(logger.Config{Development: cfg.Debug})
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	esClient, err := search.NewClient(cfg.Search)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	deadLetters := database.NewDeadLetterRepository(db)
	contents := database.NewContentRepository(db)
	producer := broker.NewProducer(broker.NewStreamsClientFromRedis(redisClient, broker.CreationStream), broker.ProducerConfig{})
	contentCache := cache.New(redisClient, cfg.Cache.TTL, log)
	searchIndex := search.NewIndex(esClient, cfg.Search.Index, log)

	total, err := deadLetters.Count(ctx)
	if err != nil {
		return fmt.Errorf("count dead letters: %w", err)
	}
	depth, err := producer.StreamDepth(ctx)
	if err != nil {
		return fmt.Errorf("read stream depth: %w", err)
	}
	log.Info("dead letter queue",
		logger.Int64("total", total),
		logger.Int64("stream_depth", depth),
	)

	entries, err := deadLetters.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	for _, entry := range entries {
		entryLog := log.With(
			logger.String("content_id", entry.ContentID),
			logger.String("failure_reason", entry.FailureReason),
		)

		_, lookupErr := contents.GetByID(ctx, entry.ContentID)
		deleted := errors.Is(lookupErr, domain.ErrNotFound)
		if lookupErr != nil && !deleted {
			entryLog.Error("canonical lookup failed", logger.Error(lookupErr))
			continue
		}

		if deleted {
			// The author deleted the content after the event failed to
			// publish; nothing to re-deliver.
			if prune {
				if err := searchIndex.Delete(ctx, entry.ContentID); err != nil {
					entryLog.Warn("prune search document failed", logger.Error(err))
				}
				if err := contentCache.Delete(ctx, entry.ContentID); err != nil {
					entryLog.Warn("prune cache entry failed", logger.Error(err))
				}
				entryLog.Info("pruned read-side copies of deleted content")
			} else {
				entryLog.Info("content deleted, skipping")
			}
			continue
		}

		if republish {
			event := domain.CreationEvent{
				ContentID: entry.ContentID,
				AuthorID:  entry.AuthorID,
				Body:      entry.Body,
				CreatedAt: entry.CreatedAt,
			}
			if _, err := producer.Publish(ctx, event); err != nil {
				entryLog.Error("re-publish failed", logger.Error(err))
				continue
			}
			entryLog.Info("event re-published")
		} else {
			entryLog.Info("dead letter entry",
				logger.Time("recorded_at", entry.RecordedAt),
			)
		}
	}

	if republish {
		if err := producer.TrimStream(ctx); err != nil {
			log.Warn("trim stream failed", logger.Error(err))
		}
	}

	return nil
}
