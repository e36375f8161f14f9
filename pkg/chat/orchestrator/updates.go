package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"promochat/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	wmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const updatesTopic = "chat.updates"

// updateFeed fans snapshots out to UI subscribers over an in-process pub/sub.
type updateFeed struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
}

func newUpdateFeed(log logger.ILogger) *updateFeed {
	return &updateFeed{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 32},
			logger.NewWatermillAdapter(log, module),
		),
		logger: log,
	}
}

func (f *updateFeed) publish(snap Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		f.logger.Error(module, "Failed to encode snapshot", map[string]interface{}{"error": err.Error()})
		return
	}
	msg := wmessage.NewMessage(watermill.NewUUID(), payload)
	if err := f.pubSub.Publish(updatesTopic, msg); err != nil {
		f.logger.Warn(module, "Failed to publish snapshot", map[string]interface{}{"error": err.Error()})
	}
}

// subscribe streams snapshots until ctx is done. Delivery order across
// messages is not guaranteed by the pub/sub, so older versions are dropped.
func (f *updateFeed) subscribe(ctx context.Context) (<-chan Snapshot, error) {
	msgs, err := f.pubSub.Subscribe(ctx, updatesTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to updates: %w", err)
	}

	out := make(chan Snapshot, 16)
	go func() {
		defer close(out)
		var last uint64
		for msg := range msgs {
			var snap Snapshot
			err := json.Unmarshal(msg.Payload, &snap)
			msg.Ack()
			if err != nil || snap.Version <= last {
				continue
			}
			last = snap.Version
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *updateFeed) close() error {
	return f.pubSub.Close()
}
