// Command api serves the public REST API. It publishes uploads to the file
// queue and runs the result listener that merges OCR text into the document
// store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/docvault/internal/api"
	"github.com/dharsanguruparan/docvault/internal/broker"
	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/docstore"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/results"
	"github.com/dharsanguruparan/docvault/internal/s3storage"
	"github.com/dharsanguruparan/docvault/internal/signing"
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
		logger.Error("api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mgr := broker.NewManager(cfg.Broker.URL,
		[]string{cfg.Broker.FileQueue, cfg.Broker.ResultQueue},
		broker.WithRetry(cfg.Broker.ConnectAttempts, cfg.Broker.ConnectBackoff),
		broker.WithPrefetch(cfg.Broker.Prefetch),
		broker.WithLogger(logger))

	pubSession, err := mgr.Connect(ctx)
	if err != nil {
		return err
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

	// The listener consumes on its own channel of the publisher's connection.
	listenSession, err := mgr.Attach(pubSession.Connection())
	if err != nil {
		return fmt.Errorf("attach result listener: %w", err)
	}
	defer listenSession.Close()

	docs := docstore.New(cfg.DocumentStore, nil, logger)
	// The reconciler bounds its own attempts, so it skips the breaker that
	// guards API traffic.
	reconcileDocs := docstore.New(cfg.DocumentStore, nil, logger, docstore.WithoutBreaker())
	reconciler := results.NewReconciler(reconcileDocs, cfg.Reconcile, results.WithLogger(logger))
	consumer, err := broker.NewConsumer(listenSession, broker.ConsumerConfig{
		Queue:   cfg.Broker.ResultQueue,
		AutoAck: true,
	}, results.NewListener(reconciler, logger), logger)
	if err != nil {
		return fmt.Errorf("init result listener: %w", err)
	}

	files, err := newFileStore(ctx, cfg)
	if err != nil {
		return err
	}
	srv := api.New(cfg, docs, files, publisher, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}

func newFileStore(ctx context.Context, cfg *config.Config) (api.FileStore, error) {
	if cfg.OCR.SourceMode == config.SourceLocal {
		if cfg.SigningSecret == "" {
			return nil, errors.New("DOCVAULT_SIGNING_SECRET is required with local uploads")
		}
		return api.NewLocalFiles(cfg.UploadDir, signing.NewSigner([]byte(cfg.SigningSecret)), cfg.SignedURLTTL)
	}
	store, err := s3storage.New(cfg.S3)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return api.NewObjectFiles(store, cfg.SignedURLTTL), nil
}
