// Package ingest handles file_queue deliveries: resolve the referenced file,
// run OCR on it and publish the text to the result queue.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dharsanguruparan/docvault/internal/broker"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/ocr"
	"github.com/dharsanguruparan/docvault/internal/queue"
)

// ResultPublisher sends extracted text for a document.
type ResultPublisher interface {
	PublishResult(ctx context.Context, documentID int, text string) error
}

// Handler processes one file_queue message at a time. It implements
// broker.Handler; every outcome except a shutdown abort settles with an ack,
// so a bad message is never redelivered.
type Handler struct {
	resolver  Resolver
	extractor ocr.Extractor
	publisher ResultPublisher
	logger    *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(resolver Resolver, extractor ocr.Extractor, publisher ResultPublisher, logger *slog.Logger) *Handler {
	return &Handler{
		resolver:  resolver,
		extractor: extractor,
		publisher: publisher,
		logger:    logging.Component(logger, "ingest"),
	}
}

var _ broker.Handler = (*Handler)(nil)

// Handle implements broker.Handler.
func (h *Handler) Handle(ctx context.Context, body []byte) broker.Decision {
	msg, err := queue.ParseFile(body)
	if err != nil {
		h.logger.Warn("invalid message format, dropping", slog.String("body", truncate(string(body), 200)), slog.Any("error", err))
		return broker.Drop
	}
	logger := h.logger.With(slog.Int("document_id", msg.DocumentID), slog.String("file", msg.Payload))
	logger.Info("processing document")

	path, release, err := h.resolver.Resolve(ctx, msg.Payload)
	if err != nil {
		if ctx.Err() != nil {
			return broker.Requeue
		}
		if errors.Is(err, ErrSourceNotFound) {
			logger.Warn("file not found, dropping", slog.Any("error", err))
		} else {
			logger.Error("file could not be fetched, dropping", slog.Any("error", err))
		}
		return broker.Drop
	}
	defer release()

	text, err := h.extractor.Extract(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("extraction aborted by shutdown, requeueing")
			return broker.Requeue
		}
		logger.Error("extraction failed", slog.Any("error", err))
		return broker.Drop
	}
	if strings.TrimSpace(text) == "" {
		logger.Info("no text extracted, nothing to publish")
		return broker.Ack
	}

	if err := h.publisher.PublishResult(ctx, msg.DocumentID, text); err != nil {
		if ctx.Err() != nil {
			logger.Warn("publish aborted by shutdown, requeueing")
			return broker.Requeue
		}
		logger.Error("publishing result failed", slog.Any("error", err))
		return broker.Drop
	}
	logger.Info("result published", slog.Int("chars", utf8.RuneCountInString(text)))
	return broker.Ack
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for i := range s {
		if n == 0 {
			return s[:i] + "..."
		}
		n--
	}
	return s
}
