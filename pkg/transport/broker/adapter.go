// Package broker implements the push transport over a message broker:
// actions are published on <prefix>.actions and events are consumed from
// <prefix>.events.<clientID>.
package broker

import (
	"context"
	"fmt"
	"sync"

	"promochat/internal/constant"
	"promochat/internal/pkg/logger"
	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"
	"promochat/pkg/transport/codec"
)

const module = "BrokerTransport"

type Config struct {
	Prefix   string
	ClientID string
}

// ActionsSubject is where clients publish actions for the given prefix.
func ActionsSubject(prefix string) string {
	return fmt.Sprintf(constant.BrokerActionsSubject, prefix)
}

// EventsSubject is where the backend publishes events for one client.
func EventsSubject(prefix, clientID string) string {
	return fmt.Sprintf(constant.BrokerEventsSubject, prefix, clientID)
}

type Adapter struct {
	transport.Emitter

	cfg    Config
	broker Broker
	logger logger.ILogger

	mu     sync.Mutex
	status transport.Status
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAdapter(cfg Config, b Broker, log logger.ILogger) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		broker: b,
		logger: log,
		status: transport.StatusClosed,
	}
	b.OnStatus(a.brokerStatus)
	return a
}

func (a *Adapter) Mode() transport.Mode { return transport.ModePush }

func (a *Adapter) Status() transport.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.status != transport.StatusClosed {
		a.mu.Unlock()
		return nil
	}
	if a.Stopped() {
		a.mu.Unlock()
		return chaterr.NotOpen("connect")
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	life := a.ctx
	a.mu.Unlock()

	subject := EventsSubject(a.cfg.Prefix, a.cfg.ClientID)
	frames, err := a.broker.Subscribe(life, subject)
	if err != nil {
		a.cancel()
		return &chaterr.TransportError{Op: "connect", Err: err}
	}
	if err := ctx.Err(); err != nil {
		a.cancel()
		return &chaterr.TransportError{Op: "connect", Err: err}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.consume(life, frames)
	}()

	a.logger.Info(module, "Subscribed", map[string]interface{}{"subject": subject})
	a.setStatus(transport.StatusOpen, nil)
	return nil
}

func (a *Adapter) consume(ctx context.Context, frames <-chan []byte) {
	for frame := range frames {
		evs, err := codec.DecodeEvent(frame)
		if err != nil {
			a.logger.Warn(module, "Dropping malformed frame", map[string]interface{}{"error": err.Error()})
			continue
		}
		for _, ev := range evs {
			a.Emit(ev)
		}
	}
	if ctx.Err() == nil {
		a.setStatus(transport.StatusClosed, fmt.Errorf("subscription ended"))
	}
}

// Send publishes the action in the background. A failed publish arrives as a
// TransportFailure event.
func (a *Adapter) Send(ctx context.Context, act events.Action) error {
	if err := act.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	if a.status == transport.StatusClosed {
		a.mu.Unlock()
		return chaterr.NotOpen(string(act.Kind))
	}
	life := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	frame, err := codec.EncodeRoutedAction(act, a.cfg.ClientID)
	if err != nil {
		a.wg.Done()
		return &chaterr.TransportError{Op: string(act.Kind), Err: err}
	}

	go func() {
		defer a.wg.Done()
		if err := a.broker.Publish(life, ActionsSubject(a.cfg.Prefix), frame); err != nil && life.Err() == nil {
			a.logger.Warn(module, "Publish failed", map[string]interface{}{"action": act.Kind, "error": err.Error()})
			a.Emit(events.TransportFailure{
				Meta: transport.NewMeta(act.SessionID, act.RequestID),
				Err:  &chaterr.TransportError{Op: string(act.Kind), Err: err},
			})
		}
	}()
	return nil
}

func (a *Adapter) RescheduleFor(string, state.Stage) {}

func (a *Adapter) CancelSchedule() {}

// Close ends the subscription. The broker itself is owned by the caller.
func (a *Adapter) Close() error {
	a.Stop()
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.status = transport.StatusClosed
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

func (a *Adapter) brokerStatus(up bool, err error) {
	if a.Status() == transport.StatusClosed {
		return
	}
	if up {
		a.setStatus(transport.StatusOpen, nil)
		return
	}
	a.setStatus(transport.StatusConnecting, err)
}

func (a *Adapter) setStatus(s transport.Status, cause error) {
	a.mu.Lock()
	if a.status == s {
		a.mu.Unlock()
		return
	}
	a.status = s
	a.mu.Unlock()

	a.Emit(events.ConnectionChanged{Meta: transport.NewMeta("", ""), Status: string(s), Err: cause})
}
