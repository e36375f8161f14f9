package broker

import (
	"context"
)

// Broker is the minimal publish/subscribe surface the push-over-broker
// transport needs.
type Broker interface {
	Publish(ctx context.Context, subject string, payload []byte) error

	// Subscribe delivers payloads published on subject until ctx is done or
	// the broker closes, then closes the returned channel.
	Subscribe(ctx context.Context, subject string) (<-chan []byte, error)

	// OnStatus registers a callback for connection loss and recovery.
	// Brokers without a network connection never call it.
	OnStatus(fn func(up bool, err error))

	Close() error
}
