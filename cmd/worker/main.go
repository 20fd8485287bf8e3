// Command worker is the OCR worker: it consumes file references from the file
// queue, extracts text and publishes it to the result queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/docvault/internal/broker"
	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/ingest"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/ocr"
	"github.com/dharsanguruparan/docvault/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engine, err := ocr.New(cfg.OCR, logger)
	if err != nil {
		return fmt.Errorf("init ocr engine: %w", err)
	}
	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		return err
	}

	mgr := broker.NewManager(cfg.Broker.URL,
		[]string{cfg.Broker.FileQueue, cfg.Broker.ResultQueue},
		broker.WithRetry(cfg.Broker.ConnectAttempts, cfg.Broker.ConnectBackoff),
		broker.WithPrefetch(cfg.Broker.Prefetch),
		broker.WithLogger(logger))
	session, err := mgr.Connect(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	// Results go out on a separate channel so publisher confirms never
	// interleave with the consumer's deliveries.
	pubSession, err := mgr.Attach(session.Connection())
	if err != nil {
		return fmt.Errorf("attach publisher: %w", err)
	}
	defer pubSession.Close()
	publisher, err := broker.NewPublisher(pubSession, broker.PublisherConfig{
		FileQueue:   cfg.Broker.FileQueue,
		ResultQueue: cfg.Broker.ResultQueue,
		Timeout:     cfg.Broker.PublishTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	consumer, err := broker.NewConsumer(session, broker.ConsumerConfig{
		Queue: cfg.Broker.FileQueue,
	}, ingest.NewHandler(resolver, engine, publisher, logger), logger)
	if err != nil {
		return fmt.Errorf("init consumer: %w", err)
	}
	logger.Info("ocr worker started",
		slog.String("queue", cfg.Broker.FileQueue),
		slog.String("engine", cfg.OCR.Engine),
		slog.String("source_mode", cfg.OCR.SourceMode))
	return consumer.Run(ctx)
}

func newResolver(ctx context.Context, cfg *config.Config) (ingest.Resolver, error) {
	if cfg.OCR.SourceMode == config.SourceLocal {
		return ingest.NewResolver(cfg.OCR, nil)
	}
	store, err := s3storage.New(cfg.S3)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return ingest.NewResolver(cfg.OCR, store)
}
