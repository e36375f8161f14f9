package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"promochat/internal/config"
	"promochat/internal/pkg/logger"
	"promochat/internal/repository/memory"
	"promochat/internal/server"
	"promochat/internal/simulator"
	"promochat/internal/tracer"
	"promochat/pkg/chat/orchestrator"
	"promochat/pkg/transport/broker"
	"promochat/pkg/transport/factory"
)

// Container wires the chat client: transport, orchestrator and, for the
// in-process channel transport, an embedded simulator on the same broker.
type Container struct {
	Config       *config.Config
	Logger       logger.ILogger
	Transport    *factory.Built
	Orchestrator *orchestrator.Orchestrator

	// Simulator is set only for the channel transport.
	Simulator *simulator.Simulator

	shared         *broker.ChannelBroker
	cancel         context.CancelFunc
	shutdownTracer func(context.Context) error
}

func NewContainer(cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	c := &Container{
		Config:         cfg,
		Logger:         sysLogger,
		shutdownTracer: tracer.InitTracer(cfg.Tracing),
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if cfg.Transport.Kind == config.TransportChannel {
		sc, err := simulator.LoadScenario(cfg.Simulator.ScenarioPath)
		if err != nil {
			cancel()
			return nil, err
		}
		c.shared = broker.NewChannelBroker(sysLogger)
		c.Simulator = simulator.New(sc, memory.NewChatRepository(0), sysLogger)
		if err := c.Simulator.ServeBroker(ctx, c.shared, cfg.Broker.Prefix); err != nil {
			c.Close(context.Background())
			return nil, fmt.Errorf("failed to start embedded simulator: %w", err)
		}
		log.Printf("[INFO] Using embedded simulator (scenario %s)", sc.Name)
	}

	built, err := factory.NewTransport(cfg, sysLogger, c.shared)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	c.Transport = built

	orch, err := orchestrator.New(built.Adapter, OrchestratorOptions(cfg), sysLogger)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	c.Orchestrator = orch
	return c, nil
}

// OrchestratorOptions maps configuration onto orchestrator options.
func OrchestratorOptions(cfg *config.Config) orchestrator.Options {
	opts := orchestrator.DefaultOptions()
	opts.UserID = cfg.Chat.UserID
	opts.DeleteOnReset = cfg.Chat.DeleteOnReset
	opts.TurnTimeout = cfg.Chat.TurnTimeout
	opts.ActivityLimit = cfg.Chat.ActivityLimit
	opts.Script = cfg.Stream.Script
	opts.ExtraChars = cfg.Stream.ExtraChars
	opts.Sentinels = cfg.Stream.Sentinels
	return opts
}

// Close disposes the orchestrator, which closes the adapter, then the rest.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Orchestrator != nil {
		errs = append(errs, c.Orchestrator.Dispose())
	} else if c.Transport != nil {
		errs = append(errs, c.Transport.Adapter.Close())
	}
	if c.Transport != nil && c.Transport.Broker != nil {
		errs = append(errs, c.Transport.Broker.Close())
	}
	c.cancel()
	if c.Simulator != nil {
		c.Simulator.Close()
	}
	if c.shared != nil {
		errs = append(errs, c.shared.Close())
	}
	errs = append(errs, c.shutdownTracer(ctx))
	_ = c.Logger.Sync()
	return errors.Join(errs...)
}

// BackendContainer wires the development backend: the simulator behind the
// HTTP server plus, for broker transports, a broker front end.
type BackendContainer struct {
	Config    *config.Config
	Logger    logger.ILogger
	Simulator *simulator.Simulator
	Server    *server.Server
	Broker    broker.Broker

	cancel         context.CancelFunc
	shutdownTracer func(context.Context) error
}

func NewBackendContainer(cfg *config.Config, sysLogger logger.ILogger) (*BackendContainer, error) {
	sc, err := simulator.LoadScenario(cfg.Simulator.ScenarioPath)
	if err != nil {
		return nil, err
	}
	sim := simulator.New(sc, memory.NewChatRepository(0), sysLogger)

	b := &BackendContainer{
		Config:         cfg,
		Logger:         sysLogger,
		Simulator:      sim,
		Server:         server.New(cfg, sim, sysLogger),
		shutdownTracer: tracer.InitTracer(cfg.Tracing),
	}

	switch cfg.Transport.Kind {
	case config.TransportNats:
		nb, err := broker.NewNatsBroker(cfg.Broker.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS: %v", err)
			break
		}
		b.Broker = nb
	case config.TransportRedis:
		rb, err := broker.NewRedisBroker(cfg.Broker.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to set up Redis: %v", err)
			break
		}
		b.Broker = rb
	}
	return b, nil
}

// Start runs the websocket hub and, when configured, the broker front end.
func (b *BackendContainer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.Simulator.Run(ctx)
	if b.Broker != nil {
		if err := b.Simulator.ServeBroker(ctx, b.Broker, b.Config.Broker.Prefix); err != nil {
			return fmt.Errorf("failed to serve broker actions: %w", err)
		}
	}
	return nil
}

func (b *BackendContainer) Close(ctx context.Context) error {
	var errs []error
	errs = append(errs, b.Server.Shutdown())
	if b.cancel != nil {
		b.cancel()
	}
	b.Simulator.Close()
	if b.Broker != nil {
		errs = append(errs, b.Broker.Close())
	}
	errs = append(errs, b.shutdownTracer(ctx))
	_ = b.Logger.Sync()
	return errors.Join(errs...)
}
