package simulator

import (
	"context"
	"sync"

	"promochat/internal/pkg/logger"
	"promochat/internal/repository/memory"
	ws "promochat/internal/websocket"
	"promochat/pkg/transport/broker"
	"promochat/pkg/transport/codec"

	"github.com/gofiber/fiber/v2"
)

// SocketPath is where the websocket endpoint is mounted under the API group.
const SocketPath = "/chat-socket"

// Simulator bundles the engine with the three protocol front ends.
type Simulator struct {
	Engine *Engine
	REST   *RESTHandler
	Hub    *ws.Hub

	logger logger.ILogger
	wg     sync.WaitGroup
}

func New(sc *Scenario, chats *memory.ChatRepository, log logger.ILogger) *Simulator {
	engine := NewEngine(sc, chats, log)
	s := &Simulator{
		Engine: engine,
		REST:   NewRESTHandler(engine),
		logger: log,
	}
	s.Hub = ws.NewHub(s.onSocketFrame, log)
	return s
}

func (s *Simulator) RegisterRoutes(api fiber.Router) {
	s.REST.RegisterRoutes(api)
	s.Hub.RegisterRoutes(api, SocketPath)
}

// Run starts the websocket hub until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Hub.Run(ctx)
	}()
}

func (s *Simulator) onSocketFrame(c *ws.Client, frame []byte) {
	act, _, err := codec.DecodeAction(frame)
	if err != nil {
		s.logger.Warn(module, "Dropping malformed action", map[string]interface{}{"client_id": c.ID, "error": err.Error()})
		return
	}
	s.Engine.HandleAction(act, func(out []byte) {
		s.Hub.Send(c.ID, out)
	})
}

// ServeBroker answers actions published on <prefix>.actions, replying on
// each client's events subject, until ctx is done.
func (s *Simulator) ServeBroker(ctx context.Context, b broker.Broker, prefix string) error {
	frames, err := b.Subscribe(ctx, broker.ActionsSubject(prefix))
	if err != nil {
		return err
	}
	s.logger.Info(module, "Serving broker actions", map[string]interface{}{"subject": broker.ActionsSubject(prefix)})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for frame := range frames {
			act, clientID, err := codec.DecodeAction(frame)
			if err != nil || clientID == "" {
				s.logger.Warn(module, "Dropping unroutable action", map[string]interface{}{"error": errString(err)})
				continue
			}
			subject := broker.EventsSubject(prefix, clientID)
			s.Engine.HandleAction(act, func(out []byte) {
				if err := b.Publish(ctx, subject, out); err != nil && ctx.Err() == nil {
					s.logger.Warn(module, "Publish failed", map[string]interface{}{"subject": subject, "error": err.Error()})
				}
			})
		}
	}()
	return nil
}

// Close stops playbacks. Callers cancel the contexts given to Run and
// ServeBroker first.
func (s *Simulator) Close() {
	s.Engine.Close()
	s.wg.Wait()
}

func errString(err error) string {
	if err == nil {
		return "missing client id"
	}
	return err.Error()
}
