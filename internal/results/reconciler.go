// Package results merges OCR text from the result queue into stored
// documents.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/docstore"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/model"
	"github.com/dharsanguruparan/docvault/internal/retry"
)

// ErrReconcileExhausted is returned when every attempt failed.
var ErrReconcileExhausted = errors.New("reconciliation attempts exhausted")

// Store is the part of the document store the reconciler needs.
type Store interface {
	Fetch(ctx context.Context, id int) docstore.FetchResult
	Persist(ctx context.Context, doc *model.Document) error
}

// Reconciler merges text into a document with a fetch-then-update loop. The
// record may not exist yet when the result arrives, so the first fetch is
// delayed and missing records are retried a bounded number of times.
type Reconciler struct {
	store        Store
	attempts     int
	initialDelay time.Duration
	retryDelay   time.Duration
	sleep        retry.SleepFunc
	now          func() time.Time
	logger       *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithSleep replaces the wait used for the delays.
func WithSleep(fn retry.SleepFunc) ReconcilerOption {
	return func(r *Reconciler) { r.sleep = fn }
}

// WithClock replaces the clock used to stamp UpdatedAt.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler builds a Reconciler using the attempt budget and delays from
// cfg.
func NewReconciler(store Store, cfg config.ReconcileConfig, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:        store,
		attempts:     cfg.Attempts,
		initialDelay: cfg.InitialDelay,
		retryDelay:   cfg.RetryDelay,
		sleep:        retry.Sleep,
		now:          time.Now,
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.Component(r.logger, "reconciler")
	return r
}

// Reconcile sets the document's OCR text and persists it. It returns nil on
// success, the context error if interrupted, or an error wrapping
// ErrReconcileExhausted.
func (r *Reconciler) Reconcile(ctx context.Context, documentID int, text string) error {
	logger := r.logger.With(slog.Int("document_id", documentID))
	if err := r.sleep(ctx, r.initialDelay); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.retryDelay); err != nil {
				return err
			}
		}
		err := r.try(ctx, documentID, text)
		if err == nil {
			logger.Info("ocr text stored", slog.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		logger.Warn("reconciliation attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.attempts),
			slog.Any("error", err))
	}
	logger.Error("giving up on ocr result", slog.Int("attempts", r.attempts), slog.Any("error", lastErr))
	return fmt.Errorf("%w: document %d after %d attempts: %w", ErrReconcileExhausted, documentID, r.attempts, lastErr)
}

func (r *Reconciler) try(ctx context.Context, documentID int, text string) error {
	res := r.store.Fetch(ctx, documentID)
	switch res.Status {
	case docstore.NotFound:
		return model.ErrNotFound
	case docstore.Transient:
		return fmt.Errorf("fetch: %w", res.Err)
	}
	doc := res.Document
	doc.SetOcrText(text, r.now().UTC())
	if err := r.store.Persist(ctx, doc); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}
