package socket

import (
	"context"
	"time"

	"promochat/pkg/transport/codec"

	"github.com/fasthttp/websocket"
)

// serve runs the read and write pumps for one connection and returns the
// error that ended it.
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() {
		readErr <- a.readPump(conn)
	}()

	err := a.writePump(ctx, conn, readErr)
	conn.Close()
	return err
}

// readPump decodes inbound frames until the connection fails.
func (a *Adapter) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(a.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
		return nil
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Warn(module, "Unexpected close", map[string]interface{}{"error": err.Error()})
			}
			return err
		}
		evs, err := codec.DecodeEvent(frame)
		if err != nil {
			a.logger.Warn(module, "Dropping malformed frame", map[string]interface{}{"error": err.Error()})
			continue
		}
		for _, ev := range evs {
			a.Emit(ev)
		}
	}
}

// writePump drains the outbox and keeps the connection alive with pings.
func (a *Adapter) writePump(ctx context.Context, conn *websocket.Conn, readErr <-chan error) error {
	pingPeriod := (a.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case err := <-readErr:
			return err

		case frame := <-a.outbox:
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				a.logger.Warn(module, "Write failed", map[string]interface{}{"error": err.Error()})
				return err
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
