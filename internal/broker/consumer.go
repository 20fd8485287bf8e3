package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dharsanguruparan/docvault/internal/logging"
)

// Decision tells the consume loop how to settle a delivery.
type Decision int

const (
	// Ack marks the message as handled.
	Ack Decision = iota
	// Drop discards a message that can never be handled. It is acknowledged
	// so the broker does not redeliver it.
	Drop
	// Requeue returns the message to the queue for redelivery.
	Requeue
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Requeue:
		return "requeue"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Handler processes one message body and returns how it should be settled.
type Handler interface {
	Handle(ctx context.Context, body []byte) Decision
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, body []byte) Decision

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, body []byte) Decision {
	return f(ctx, body)
}

// Consumer runs a consume loop on one queue. Deliveries are handled one at a
// time in delivery order.
type Consumer struct {
	provider ChannelProvider
	queue    string
	autoAck  bool
	handler  Handler
	tag      string
	logger   *slog.Logger
}

// ConsumerConfig describes the queue and acknowledgment mode.
type ConsumerConfig struct {
	Queue string
	// AutoAck makes the broker treat messages as delivered on receipt; the
	// handler's decision is then only logged.
	AutoAck bool
}

// NewConsumer builds a Consumer.
func NewConsumer(provider ChannelProvider, cfg ConsumerConfig, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.Queue == "" {
		return nil, ErrInvalidQueueName
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	return &Consumer{
		provider: provider,
		queue:    cfg.Queue,
		autoAck:  cfg.AutoAck,
		handler:  handler,
		tag:      "docvault-" + cfg.Queue + "-" + uuid.NewString()[:8],
		logger:   logging.Component(logger, "consumer").With(slog.String("queue", cfg.Queue)),
	}, nil
}

// Run consumes until ctx is cancelled (returns nil) or the broker closes the
// delivery stream (returns ErrDeliveriesClosed). A message being handled when
// ctx is cancelled is finished and settled before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	ch := c.provider.Channel()
	deliveries, err := ch.Consume(
		c.queue,
		c.tag,
		c.autoAck,
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.Info("started listening", slog.Bool("auto_ack", c.autoAck))
	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(c.tag, false); err != nil {
				c.logger.Warn("cancel consumer", slog.Any("error", err))
			}
			c.logger.Info("stopped listening")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	logger := c.logger.With(slog.Uint64("delivery_tag", d.DeliveryTag))
	logger.Debug("message received", slog.Int("bytes", len(d.Body)), slog.Bool("redelivered", d.Redelivered))
	decision := c.handle(ctx, d.Body, logger)
	if c.autoAck {
		return
	}
	if err := settle(d, decision); err != nil {
		logger.Error("settle delivery", slog.String("decision", decision.String()), slog.Any("error", err))
	}
}

// handle shields the loop from handler panics; a panicking message is dropped.
func (c *Consumer) handle(ctx context.Context, body []byte, logger *slog.Logger) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked, dropping message", slog.Any("panic", r))
			decision = Drop
		}
	}()
	return c.handler.Handle(ctx, body)
}

func settle(d amqp.Delivery, decision Decision) error {
	switch decision {
	case Requeue:
		return d.Nack(false, true)
	default:
		return d.Ack(false)
	}
}
