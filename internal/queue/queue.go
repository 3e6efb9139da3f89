package queue

import (
	"context"
	"errors"
)

var (
	ErrClosed          = errors.New("queue connection closed")
	ErrUnknownDelivery = errors.New("delivery already acknowledged or rejected")
)

// Delivery is one message handed to a consumer. Exactly one of Ack or Reject must be
// called on it.
type Delivery interface {
	Body() []byte
	Redelivered() bool
	Ack() error
	Reject(requeue bool) error
}

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
	Close() error
}

type Consumer interface {
	SetPrefetch(count int) error
	// Consume streams deliveries until the connection is lost or closed, then closes
	// the channel.
	Consume(queue string) (<-chan Delivery, error)
	Close() error
}
