// Package app wires the fanout service together: storage, broker,
// collaborator clients, consumers, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/arunpatilgithub/twitter-microservices/internal/api"
	"github.com/arunpatilgithub/twitter-microservices/internal/breaker"
	"github.com/arunpatilgithub/twitter-microservices/internal/broker"
	"github.com/arunpatilgithub/twitter-microservices/internal/cache"
	"github.com/arunpatilgithub/twitter-microservices/internal/config"
	"github.com/arunpatilgithub/twitter-microservices/internal/consumer"
	"github.com/arunpatilgithub/twitter-microservices/internal/database"
	"github.com/arunpatilgithub/twitter-microservices/internal/directory"
	"github.com/arunpatilgithub/twitter-microservices/internal/logger"
	"github.com/arunpatilgithub/twitter-microservices/internal/metrics"
	"github.com/arunpatilgithub/twitter-microservices/internal/publisher"
	"github.com/arunpatilgithub/twitter-microservices/internal/retry"
	"github.com/arunpatilgithub/twitter-microservices/internal/search"
	"github.com/arunpatilgithub/twitter-microservices/internal/service"
)

// Options configure application construction.
type Options struct {
	ConfigPath string
	Version    string
}

// App owns every long-lived component of the fanout service.
type App struct {
	cfg      *config.Config
	log      logger.Logger
	db       *sqlx.DB
	redis    *redis.Client
	registry *prometheus.Registry

	server  *api.Server
	workers []*consumer.Worker
}

// New loads configuration and constructs the full component graph.
func New(opts Options) (*App, error) {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Development: cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(logger.String("version", opts.Version))

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	esClient, err := search.NewClient(cfg.Search)
	if err != nil {
		_ = db.Close()
		_ = redisClient.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	contentRepo := database.NewContentRepository(db)
	feedRepo := database.NewFeedRepository(db)
	deadLetterRepo := database.NewDeadLetterRepository(db)

	streams := broker.NewStreamsClientFromRedis(redisClient, broker.CreationStream)
	producer := broker.NewProducer(streams, broker.ProducerConfig{})

	directoryClient := directory.NewClient(cfg.Directory, log)
	contentCache := cache.New(redisClient, cfg.Cache.TTL, log)
	searchIndex := search.NewIndex(esClient, cfg.Search.Index, log)

	directoryBreaker := newBreaker("directory", cfg.Breaker, m)
	publishBreaker := newBreaker("broker-publish", cfg.Breaker, m)

	resilientPublisher := publisher.New(producer, deadLetterRepo, publishBreaker, publisher.Config{
		AttemptTimeout: cfg.Publisher.AttemptTimeout,
		Retry: retry.Config{
			MaxAttempts:  cfg.Publisher.MaxAttempts,
			InitialDelay: cfg.Publisher.InitialDelay,
			MaxDelay:     cfg.Publisher.MaxDelay,
		},
	}, m, log)

	contentService := service.NewContentService(
		contentRepo, directoryClient, directoryBreaker, contentCache,
		resilientPublisher, cfg.Fanout.Threshold, m, log,
	)
	feedService := service.NewFeedService(feedRepo, contentRepo, directoryClient, directoryBreaker, log)

	workers, err := buildWorkers(cfg, streams, directoryClient, feedRepo, searchIndex, m, log)
	if err != nil {
		_ = db.Close()
		_ = redisClient.Close()
		return nil, err
	}

	handler := api.NewHandler(contentService, feedService, searchIndex, log)
	server := api.NewServer(cfg.Server, handler, registry, log)

	return &App{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    redisClient,
		registry: registry,
		server:   server,
		workers:  workers,
	}, nil
}

func newBreaker(name string, cfg config.BreakerConfig, m *metrics.Metrics) *breaker.Breaker {
	return breaker.New(breaker.Config{
		WindowSize:       cfg.WindowSize,
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		OnStateChange: func(_, to breaker.State) {
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

func buildWorkers(
	cfg *config.Config,
	streams *broker.StreamsClient,
	directoryClient *directory.Client,
	feedRepo *database.FeedRepository,
	searchIndex *search.Index,
	m *metrics.Metrics,
	log logger.Logger,
) ([]*consumer.Worker, error) {
	consumerConfig := func(group string) broker.ConsumerConfig {
		return broker.ConsumerConfig{
			ConsumerGroup: group,
			ConsumerID:    cfg.Consumers.ConsumerID,
			BlockTimeout:  cfg.Consumers.BlockTimeout,
			BatchSize:     int64(cfg.Consumers.BatchSize),
			ClaimMinIdle:  cfg.Consumers.ClaimMinIdle,
		}
	}

	materializer := consumer.NewFeedMaterializer(directoryClient, feedRepo, m, log)
	materializerConsumer, err := broker.NewConsumer(streams, consumerConfig(materializer.Name()))
	if err != nil {
		return nil, fmt.Errorf("create feed materializer consumer: %w", err)
	}

	indexer := consumer.NewSearchIndexer(searchIndex, log)
	indexerConsumer, err := broker.NewConsumer(streams, consumerConfig(indexer.Name()))
	if err != nil {
		return nil, fmt.Errorf("create search indexer consumer: %w", err)
	}

	return []*consumer.Worker{
		consumer.NewWorker(materializerConsumer, materializer, m, log),
		consumer.NewWorker(indexerConsumer, indexer, m, log),
	}, nil
}

// Logger exposes the application logger for the entry point.
func (a *App) Logger() logger.Logger {
	return a.log
}

// Run starts the consumers and the HTTP server and blocks until a
// shutdown signal arrives or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, w := range a.workers {
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.server.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	if err := a.server.Shutdown(context.Background()); err != nil {
		a.log.Error("server shutdown failed", logger.Error(err))
	}
	for _, w := range a.workers {
		w.Stop()
	}
	return nil
}

// Close releases the application's connections.
func (a *App) Close() error {
	var firstErr error
	if err := a.redis.Close(); err != nil {
		firstErr = err
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = a.log.Sync()
	return firstErr
}
