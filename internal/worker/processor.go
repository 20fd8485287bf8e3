// Package worker runs the background search index jobs queued by the DAL.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/model"
	"github.com/dharsanguruparan/docvault/internal/queue"
)

// Reindexer refreshes the stored search vector for one document.
type Reindexer interface {
	Reindex(ctx context.Context, id int) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	repo   Reindexer
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo Reindexer, logger *slog.Logger) *Processor {
	return &Processor{repo: repo, logger: logging.Component(logger, "index-worker")}
}

// Handler registers the index job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.IndexDocumentTask, p.HandleIndex)
	return mux
}

// HandleIndex refreshes one document's search vector. A document deleted
// before the job ran is not retried.
func (p *Processor) HandleIndex(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeIndexPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := p.repo.Reindex(ctx, payload.DocumentID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			p.logger.Info("document gone before indexing", slog.Int("document_id", payload.DocumentID))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		p.logger.Error("reindex failed", slog.Int("document_id", payload.DocumentID), slog.Any("error", err))
		return err
	}
	p.logger.Debug("document indexed", slog.Int("document_id", payload.DocumentID))
	return nil
}
