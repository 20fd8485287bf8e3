// Package brokertest provides in-memory stand-ins for broker connections and
// channels.
package brokertest

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dharsanguruparan/docvault/internal/broker"
)

// Published is one message handed to PublishWithContext.
type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// Channel records every call made on it. Deliveries pushed with Deliver are
// returned from Consume.
type Channel struct {
	mu sync.Mutex

	Declared  []string
	Published []Published
	Cancelled []string
	Prefetch  int
	Confirmed bool
	Closed    bool

	// ConfirmAck decides the confirmation sent for each publish. Nil acks
	// everything; returning false for ok suppresses the confirmation.
	ConfirmAck func(n int) (ack, ok bool)

	DeclareErr error
	ConsumeErr error
	PublishErr error

	deliveries chan amqp.Delivery
	confirms   chan amqp.Confirmation
	tag        uint64
	deliveryN  uint64
}

// NewChannel returns an open Channel with a buffered delivery stream.
func NewChannel() *Channel {
	return &Channel{deliveries: make(chan amqp.Delivery, 64)}
}

var _ broker.Channel = (*Channel)(nil)

func (c *Channel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	c.Declared = append(c.Declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prefetch = prefetchCount
	return nil
}

func (c *Channel) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	return c.deliveries, nil
}

func (c *Channel) Cancel(consumer string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Cancelled = append(c.Cancelled, consumer)
	return nil
}

func (c *Channel) Confirm(_ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Confirmed = true
	return nil
}

func (c *Channel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirms = confirm
	return confirm
}

func (c *Channel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.Published = append(c.Published, Published{Exchange: exchange, Key: key, Msg: msg})
	if !c.Confirmed || c.confirms == nil {
		return nil
	}
	c.tag++
	ack, ok := true, true
	if c.ConfirmAck != nil {
		ack, ok = c.ConfirmAck(len(c.Published))
	}
	if ok {
		confirm := amqp.Confirmation{DeliveryTag: c.tag, Ack: ack}
		confirms := c.confirms
		go func() { confirms <- confirm }()
	}
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Deliver queues body for the consumer and returns the acknowledger that
// will record how it was settled.
func (c *Channel) Deliver(body string) *Acknowledger {
	c.mu.Lock()
	c.deliveryN++
	tag := c.deliveryN
	c.mu.Unlock()
	ack := &Acknowledger{}
	c.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
	return ack
}

// CloseDeliveries ends the delivery stream as a broker-side cancel would.
func (c *Channel) CloseDeliveries() {
	close(c.deliveries)
}

// Bodies returns the bodies published so far, in order.
func (c *Channel) Bodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Published))
	for _, p := range c.Published {
		out = append(out, string(p.Msg.Body))
	}
	return out
}

// DeclaredQueues returns a copy of the declared queue names.
func (c *Channel) DeclaredQueues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Declared...)
}

// Outcome is how a delivery was settled.
type Outcome int

const (
	Pending Outcome = iota
	Acked
	Nacked
	Requeued
	Rejected
)

// Acknowledger records the settlement of one delivery. Done is closed on the
// first settlement.
type Acknowledger struct {
	mu      sync.Mutex
	outcome Outcome
	calls   int
	done    chan struct{}
	once    sync.Once
}

func (a *Acknowledger) record(o Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.outcome == Pending {
		a.outcome = o
	}
	a.once.Do(func() { close(a.doneChan()) })
	return nil
}

func (a *Acknowledger) doneChan() chan struct{} {
	if a.done == nil {
		a.done = make(chan struct{})
	}
	return a.done
}

// Done is closed once the delivery has been settled.
func (a *Acknowledger) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doneChan()
}

// Outcome returns the first settlement recorded.
func (a *Acknowledger) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// Calls returns how many times the delivery was settled.
func (a *Acknowledger) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *Acknowledger) Ack(uint64, bool) error {
	return a.record(Acked)
}

func (a *Acknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		return a.record(Requeued)
	}
	return a.record(Nacked)
}

func (a *Acknowledger) Reject(uint64, bool) error {
	return a.record(Rejected)
}

// Connection hands out a fixed channel.
type Connection struct {
	mu     sync.Mutex
	ch     *Channel
	closed bool
	opened int
}

// NewConnection returns an open connection whose Channel always returns ch.
func NewConnection(ch *Channel) *Connection {
	return &Connection{ch: ch}
}

var _ broker.Connection = (*Connection)(nil)

func (c *Connection) Channel() (broker.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	c.opened++
	return c.ch, nil
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// ChannelsOpened returns how many channels were requested.
func (c *Connection) ChannelsOpened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// Dialer fails the first Failures dials and then returns Conn.
type Dialer struct {
	mu       sync.Mutex
	Failures int
	Conn     *Connection
	Calls    int
}

// ErrRefused is returned by failing dials.
var ErrRefused = errors.New("brokertest: connection refused")

// Dial implements broker.Dialer.
func (d *Dialer) Dial(string) (broker.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Calls <= d.Failures || d.Conn == nil {
		return nil, ErrRefused
	}
	return d.Conn, nil
}

// Provider is a fixed ChannelProvider.
type Provider struct{ Ch broker.Channel }

// Channel returns p.Ch.
func (p Provider) Channel() broker.Channel { return p.Ch }
