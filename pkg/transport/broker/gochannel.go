package broker

import (
	"context"
	"fmt"

	"promochat/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	wmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ChannelBroker is an in-process broker on watermill's Go channel pub/sub.
// It connects the client to the simulator inside one process.
type ChannelBroker struct {
	pubSub *gochannel.GoChannel
}

func NewChannelBroker(log logger.ILogger) *ChannelBroker {
	return &ChannelBroker{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			logger.NewWatermillAdapter(log, "ChannelBroker"),
		),
	}
}

func (b *ChannelBroker) Publish(_ context.Context, subject string, payload []byte) error {
	msg := wmessage.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubSub.Publish(subject, msg); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", subject, err)
	}
	return nil
}

func (b *ChannelBroker) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	msgs, err := b.pubSub.Subscribe(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			select {
			case out <- msg.Payload:
				msg.Ack()
			case <-ctx.Done():
				msg.Ack()
				return
			}
		}
	}()
	return out, nil
}

func (b *ChannelBroker) OnStatus(func(up bool, err error)) {}

func (b *ChannelBroker) Close() error {
	return b.pubSub.Close()
}
