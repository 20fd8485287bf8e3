package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/queue"
)

const DefaultPublishTimeout = 5 * time.Second

// Publisher sends QueueMessages to the file and result queues. Each publish
// blocks until the broker confirms it. Failures are returned to the caller
// and never retried here.
type Publisher struct {
	ch          Channel
	confirms    chan amqp.Confirmation
	fileQueue   string
	resultQueue string
	timeout     time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	nextTag uint64
}

// PublisherConfig names the queues and the confirm timeout.
type PublisherConfig struct {
	FileQueue   string
	ResultQueue string
	Timeout     time.Duration
}

// NewPublisher declares both queues on the provider's channel and switches it
// into confirm mode. The channel should not be shared with a consumer.
func NewPublisher(provider ChannelProvider, cfg PublisherConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.FileQueue == "" {
		cfg.FileQueue = queue.FileQueue
	}
	if cfg.ResultQueue == "" {
		cfg.ResultQueue = queue.ResultQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPublishTimeout
	}
	ch := provider.Channel()
	for _, q := range []string{cfg.FileQueue, cfg.ResultQueue} {
		if err := declareQueue(ch, q); err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Publisher{
		ch:          ch,
		confirms:    ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		fileQueue:   cfg.FileQueue,
		resultQueue: cfg.ResultQueue,
		timeout:     cfg.Timeout,
		logger:      logging.Component(logger, "publisher"),
		nextTag:     1,
	}, nil
}

// PublishFileForProcessing sends "<id>|<fileRef>" to the file queue.
func (p *Publisher) PublishFileForProcessing(ctx context.Context, documentID int, fileRef string) error {
	if fileRef == "" || strings.Contains(fileRef, queue.Delimiter) {
		return fmt.Errorf("%w: invalid file reference %q", queue.ErrMalformed, fileRef)
	}
	return p.Publish(ctx, p.fileQueue, queue.Message{DocumentID: documentID, Payload: fileRef})
}

// PublishResult sends "<id>|<text>" to the result queue with line breaks
// flattened.
func (p *Publisher) PublishResult(ctx context.Context, documentID int, text string) error {
	return p.Publish(ctx, p.resultQueue, queue.NewResult(documentID, text))
}

// Publish sends msg to the named queue through the default exchange and
// waits for the broker's confirmation.
func (p *Publisher) Publish(ctx context.Context, queueName string, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.logger.With(slog.String("queue", queueName), slog.Int("document_id", msg.DocumentID))
	body := msg.Bytes()
	err := p.ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		logger.Error("publish failed", slog.Any("error", err))
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	tag := p.nextTag
	p.nextTag++
	if err := p.awaitConfirm(ctx, tag); err != nil {
		logger.Error("publish not confirmed", slog.Uint64("delivery_tag", tag), slog.Any("error", err))
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	logger.Info("message published", slog.Int("bytes", len(body)))
	return nil
}

// awaitConfirm waits for the confirmation carrying tag. Confirmations for
// earlier tags belong to publishes that already timed out and are skipped.
func (p *Publisher) awaitConfirm(ctx context.Context, tag uint64) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return ErrChannelClosed
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if !confirm.Ack {
				return ErrNotConfirmed
			}
			return nil
		case <-timer.C:
			return ErrConfirmTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
