package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsBroker publishes on core NATS subjects. Chat events are ephemeral, so
// no JetStream stream is involved.
type NatsBroker struct {
	nc *nats.Conn

	mu       sync.Mutex
	onStatus func(up bool, err error)
}

// NewNatsBroker connects to NATS with the same reconnect policy as the rest
// of the stack.
func NewNatsBroker(url string) (*NatsBroker, error) {
	b := &NatsBroker{}
	nc, err := nats.Connect(url,
		nats.Name("promochat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.notify(false, err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			b.notify(true, nil)
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			b.notify(false, c.LastError())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b.nc = nc
	return b, nil
}

func (b *NatsBroker) notify(up bool, err error) {
	b.mu.Lock()
	fn := b.onStatus
	b.mu.Unlock()
	if fn != nil {
		fn(up, err)
	}
}

func (b *NatsBroker) OnStatus(fn func(up bool, err error)) {
	b.mu.Lock()
	b.onStatus = fn
	b.mu.Unlock()
}

func (b *NatsBroker) Publish(_ context.Context, subject string, payload []byte) error {
	if err := b.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

func (b *NatsBroker) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := b.nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				select {
				case out <- msg.Data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *NatsBroker) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}
