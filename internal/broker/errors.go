package broker

import "errors"

// Broker errors.
var (
	ErrConnectFailed    = errors.New("could not establish a broker connection")
	ErrConnectionClosed = errors.New("broker connection is not open")
	ErrNotConfirmed     = errors.New("publish was not confirmed by the broker")
	ErrConfirmTimeout   = errors.New("timed out waiting for publish confirmation")
	ErrChannelClosed    = errors.New("broker channel closed")
	ErrDeliveriesClosed = errors.New("delivery stream closed by broker")
	ErrInvalidQueueName = errors.New("queue name cannot be empty")
	ErrNilHandler       = errors.New("handler cannot be nil")
)
