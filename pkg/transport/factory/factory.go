// Package factory selects the transport strategy once, at construction.
package factory

import (
	"fmt"

	"promochat/internal/config"
	"promochat/internal/pkg/logger"
	"promochat/pkg/transport"
	"promochat/pkg/transport/broker"
	"promochat/pkg/transport/polling"
	"promochat/pkg/transport/socket"

	"github.com/google/uuid"
)

// Built is an adapter plus the resources the factory opened for it.
type Built struct {
	Adapter transport.Adapter
	// Broker is set for broker transports; the caller closes it after the adapter.
	Broker broker.Broker
}

// Close tears down the adapter, then any broker it was built on.
func (b *Built) Close() error {
	err := b.Adapter.Close()
	if b.Broker != nil {
		if berr := b.Broker.Close(); err == nil {
			err = berr
		}
	}
	return err
}

// NewTransport builds the adapter named by cfg.Transport.Kind. shared is the
// in-process broker used by the "channel" kind; it is not closed by Built.
func NewTransport(cfg *config.Config, log logger.ILogger, shared *broker.ChannelBroker) (*Built, error) {
	built := &Built{}

	switch cfg.Transport.Kind {
	case config.TransportPolling:
		built.Adapter = polling.NewAdapter(polling.Config{
			BaseURL:        cfg.Polling.BaseURL,
			Interval:       cfg.Polling.Interval,
			MaxPolls:       cfg.Polling.MaxPolls,
			StageBudget:    cfg.Polling.StageBudget,
			MaxPollErrors:  cfg.Polling.MaxPollErrors,
			RequestTimeout: cfg.Polling.RequestTimeout,
		}, log)

	case config.TransportWebsocket:
		built.Adapter = socket.NewAdapter(socket.Config{
			URL:              cfg.Socket.URL,
			HandshakeTimeout: cfg.Socket.HandshakeTimeout,
			WriteWait:        cfg.Socket.WriteWait,
			PongWait:         cfg.Socket.PongWait,
			MaxMessageSize:   cfg.Socket.MaxMessageSize,
			SendQueue:        cfg.Socket.SendQueue,
			MaxReconnects:    cfg.Socket.MaxReconnects,
			ReconnectMaxGap:  cfg.Socket.ReconnectMaxGap,
		}, log)

	case config.TransportNats:
		b, err := broker.NewNatsBroker(cfg.Broker.NatsURL)
		if err != nil {
			return nil, err
		}
		built.Broker = b
		built.Adapter = broker.NewAdapter(brokerConfig(cfg), b, log)

	case config.TransportRedis:
		b, err := broker.NewRedisBroker(cfg.Broker.RedisURL)
		if err != nil {
			return nil, err
		}
		built.Broker = b
		built.Adapter = broker.NewAdapter(brokerConfig(cfg), b, log)

	case config.TransportChannel:
		if shared == nil {
			return nil, fmt.Errorf("channel transport needs an in-process broker")
		}
		built.Adapter = broker.NewAdapter(brokerConfig(cfg), shared, log)

	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport.Kind)
	}

	if cfg.Transport.DedupTTL > 0 {
		built.Adapter = transport.Deduplicate(built.Adapter, cfg.Transport.DedupTTL)
	}
	return built, nil
}

func brokerConfig(cfg *config.Config) broker.Config {
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return broker.Config{Prefix: cfg.Broker.Prefix, ClientID: clientID}
}
