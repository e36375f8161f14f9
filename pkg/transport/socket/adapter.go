// Package socket implements the push transport over a websocket connection.
package socket

import (
	"context"
	"errors"
	"sync"
	"time"

	"promochat/internal/pkg/logger"
	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"
	"promochat/pkg/transport/codec"

	"github.com/cenkalti/backoff/v5"
	"github.com/fasthttp/websocket"
)

const module = "SocketTransport"

var errQueueFull = errors.New("send queue full")

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	MaxMessageSize   int64
	// SendQueue is the number of outbound frames buffered while connecting.
	SendQueue int
	// MaxReconnects bounds dial attempts per outage. Zero retries until Close.
	MaxReconnects   uint
	ReconnectMaxGap time.Duration
}

type Adapter struct {
	transport.Emitter

	cfg    Config
	logger logger.ILogger
	dialer *websocket.Dialer

	mu     sync.Mutex
	status transport.Status
	ctx    context.Context
	cancel context.CancelFunc
	outbox chan []byte
	wg     sync.WaitGroup
}

func NewAdapter(cfg Config, log logger.ILogger) *Adapter {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 256
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		logger: log,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		status: transport.StatusClosed,
		outbox: make(chan []byte, cfg.SendQueue),
	}
}

func (a *Adapter) Mode() transport.Mode { return transport.ModePush }

func (a *Adapter) Status() transport.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Connect dials the backend, retrying with backoff, and then keeps the
// connection alive in the background until Close.
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
	a.setStatus(transport.StatusConnecting, nil)

	dialCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-life.Done():
			stop()
		case <-dialCtx.Done():
		}
	}()

	conn, err := a.dial(dialCtx)
	if err != nil {
		a.setStatus(transport.StatusClosed, err)
		return &chaterr.TransportError{Op: "connect", Err: err}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.supervise(life, conn)
	}()
	return nil
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	if a.cfg.ReconnectMaxGap > 0 {
		policy.MaxInterval = a.cfg.ReconnectMaxGap
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.logger.Warn(module, "Dial failed, retrying", map[string]interface{}{
				"url": a.cfg.URL, "retry_in": next.String(), "error": err.Error(),
			})
		}),
	}
	if a.cfg.MaxReconnects > 0 {
		opts = append(opts, backoff.WithMaxTries(a.cfg.MaxReconnects))
	}

	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, resp, err := a.dialer.DialContext(ctx, a.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return conn, err
	}, opts...)
}

// supervise runs the pumps for one connection after another until Close or
// until reconnecting gives up.
func (a *Adapter) supervise(ctx context.Context, conn *websocket.Conn) {
	for {
		a.setStatus(transport.StatusOpen, nil)
		err := a.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		a.logger.Warn(module, "Connection lost", map[string]interface{}{"url": a.cfg.URL, "error": errString(err)})
		a.setStatus(transport.StatusConnecting, err)

		conn, err = a.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Error(module, "Reconnect gave up", map[string]interface{}{"url": a.cfg.URL, "error": err.Error()})
				a.setStatus(transport.StatusClosed, err)
			}
			return
		}
	}
}

// Send encodes the action and queues it. Frames queued while the connection
// is being negotiated are flushed once it opens.
func (a *Adapter) Send(ctx context.Context, act events.Action) error {
	if err := act.Validate(); err != nil {
		return err
	}
	if a.Status() == transport.StatusClosed {
		return chaterr.NotOpen(string(act.Kind))
	}
	frame, err := codec.EncodeAction(act)
	if err != nil {
		return &chaterr.TransportError{Op: string(act.Kind), Err: err}
	}
	select {
	case a.outbox <- frame:
		return nil
	case <-ctx.Done():
		return &chaterr.TransportError{Op: string(act.Kind), Err: ctx.Err()}
	default:
		return &chaterr.TransportError{Op: string(act.Kind), Err: errQueueFull}
	}
}

// RescheduleFor is a no-op: the backend pushes every stage on its own.
func (a *Adapter) RescheduleFor(string, state.Stage) {}

func (a *Adapter) CancelSchedule() {}

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

func (a *Adapter) setStatus(s transport.Status, cause error) {
	a.mu.Lock()
	if a.status == s {
		a.mu.Unlock()
		return
	}
	a.status = s
	a.mu.Unlock()

	meta := transport.NewMeta("", "")
	a.Emit(events.ConnectionChanged{Meta: meta, Status: string(s), Err: cause})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
