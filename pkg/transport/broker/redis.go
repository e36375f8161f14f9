package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroker uses Redis pub/sub channels as subjects.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisBroker{rdb: redis.NewClient(opts)}, nil
}

// NewRedisBrokerFromClient shares an existing client.
func NewRedisBrokerFromClient(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := b.rdb.Publish(ctx, subject, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", subject, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, subject)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	ch := pubsub.Channel()
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// OnStatus is unused; go-redis reconnects pub/sub transparently.
func (b *RedisBroker) OnStatus(func(up bool, err error)) {}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
