// Command dal runs the document store service and, when backed by Postgres,
// the asynq worker that keeps the full-text index current.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/dal"
	"github.com/dharsanguruparan/docvault/internal/database"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/queue"
	"github.com/dharsanguruparan/docvault/internal/repository"
	"github.com/dharsanguruparan/docvault/internal/server"
	"github.com/dharsanguruparan/docvault/internal/storage"
	"github.com/dharsanguruparan/docvault/internal/worker"
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
		logger.Error("document store stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		h := dal.NewHandler(storage.NewMemoryStore(), nil, logger)
		return server.Run(ctx, cfg.DALAddress, h.Routes(), logger)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	repo := repository.NewDocumentRepository(pool)

	redis := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	client := asynq.NewClient(redis)
	defer client.Close()
	indexer := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.IndexWorkers,
		Logger:      asynqLogger{logging.Component(logger, "asynq")},
	})
	processor := worker.NewProcessor(repo, logger)

	h := dal.NewHandler(repo, queue.NewIndexEnqueuer(client), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := indexer.Start(processor.Handler()); err != nil {
			return fmt.Errorf("start index worker: %w", err)
		}
		<-ctx.Done()
		indexer.Shutdown()
		return nil
	})
	g.Go(func() error { return server.Run(ctx, cfg.DALAddress, h.Routes(), logger) })
	return g.Wait()
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct{ l *slog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
