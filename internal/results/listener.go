package results

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dharsanguruparan/docvault/internal/broker"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/queue"
)

// Listener handles ocr_result_queue deliveries. It runs on an auto-ack
// consumer, so every decision it returns is informational only.
type Listener struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewListener builds a Listener.
func NewListener(reconciler *Reconciler, logger *slog.Logger) *Listener {
	return &Listener{reconciler: reconciler, logger: logging.Component(logger, "result-listener")}
}

var _ broker.Handler = (*Listener)(nil)

// Handle implements broker.Handler.
func (l *Listener) Handle(ctx context.Context, body []byte) broker.Decision {
	msg, err := queue.ParseResult(body)
	if err != nil {
		l.logger.Warn("invalid result message, dropping", slog.Any("error", err))
		return broker.Drop
	}
	logger := l.logger.With(slog.Int("document_id", msg.DocumentID))
	if strings.TrimSpace(msg.Payload) == "" {
		logger.Warn("empty ocr text, dropping")
		return broker.Drop
	}
	logger.Info("ocr result received", slog.Int("chars", utf8.RuneCountInString(msg.Payload)))
	if err := l.reconciler.Reconcile(ctx, msg.DocumentID, msg.Payload); err != nil {
		if ctx.Err() != nil {
			logger.Warn("reconciliation interrupted by shutdown")
		}
		return broker.Drop
	}
	return broker.Ack
}
