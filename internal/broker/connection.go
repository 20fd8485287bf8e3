// Package broker owns the RabbitMQ side of the OCR pipeline: connecting with
// bounded retry, publishing with confirms, and running consume loops that
// settle each delivery according to a handler's decision.
package broker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used by this package. Tests
// substitute an in-memory implementation.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection is a broker connection able to open channels.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a connection to the broker at url.
type Dialer func(url string) (Connection, error)

// ChannelProvider hands out the channel a publisher or consumer works on.
type ChannelProvider interface {
	Channel() Channel
}

const (
	defaultHeartbeat   = 10 * time.Second
	defaultDialTimeout = 30 * time.Second
)

// Dial connects to a real RabbitMQ broker.
func Dial(url string) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(defaultDialTimeout),
	})
	if err != nil {
		return nil, err
	}
	return Wrap(conn), nil
}

// Wrap adapts an existing *amqp.Connection, e.g. one owned by a host process.
func Wrap(conn *amqp.Connection) Connection {
	return &amqpConnection{conn: conn}
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

// declareQueue declares a non-durable, non-exclusive, non-auto-delete queue.
// Redeclaring an existing queue with the same flags is a no-op on the broker.
func declareQueue(ch Channel, name string) error {
	if name == "" {
		return ErrInvalidQueueName
	}
	_, err := ch.QueueDeclare(
		name,
		false, // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}
