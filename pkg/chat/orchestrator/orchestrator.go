// Package orchestrator owns one chat session: it validates UI actions against
// the workflow state, drives the transport through the backend pipeline and
// reconciles inbound events into the conversation log.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"promochat/internal/constant"
	"promochat/internal/pkg/logger"
	"promochat/pkg/chat/message"
	"promochat/pkg/chat/state"
	"promochat/pkg/chat/status"
	"promochat/pkg/chat/stream"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const module = "Orchestrator"

// ErrDisposed is returned by every operation after Dispose.
var ErrDisposed = errors.New("orchestrator disposed")

type Options struct {
	UserID   string
	Greeting string
	Apology  string

	// DeleteOnReset deletes the previous backend session when a new one starts.
	DeleteOnReset bool

	// TurnTimeout fails a push-mode turn that never reaches a terminal event.
	// Polling turns are bounded by the transport's poll budget instead.
	TurnTimeout time.Duration

	// ActivityLimit bounds the activity feed. Zero disables the feed.
	ActivityLimit int

	Script     string
	ExtraChars string
	Sentinels  []string
}

// DefaultOptions returns the options used by the terminal client.
func DefaultOptions() Options {
	return Options{
		Greeting:      constant.ChatGreeting,
		Apology:       constant.ChatApology,
		TurnTimeout:   3 * time.Minute,
		ActivityLimit: 50,
		Script:        constant.ChatDefaultScript,
		Sentinels:     constant.ChatDiscardSentinels,
	}
}

type Orchestrator struct {
	adapter transport.Adapter
	logger  logger.ILogger
	opts    Options
	queue   *queue
	updates *updateFeed

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// Everything below is touched only by queue jobs.
	machine   *state.Machine
	log       *message.Log
	acc       *stream.Accumulator
	sessionID string
	retired   map[string]struct{}
	createReq string
	requests  map[string]struct{}
	turn      int
	activity  []Activity
	watchdog  *time.Timer
	span      trace.Span
	version   uint64

	snapMu  sync.RWMutex
	current Snapshot
}

func New(adapter transport.Adapter, opts Options, log logger.ILogger) (*Orchestrator, error) {
	sanitizer, err := stream.NewSanitizer(opts.Script, opts.ExtraChars)
	if err != nil {
		return nil, err
	}
	chatLog := message.NewLog()
	o := &Orchestrator{
		adapter:  adapter,
		logger:   log,
		opts:     opts,
		queue:    newQueue(),
		updates:  newUpdateFeed(log),
		done:     make(chan struct{}),
		machine:  state.NewMachine(),
		log:      chatLog,
		acc:      stream.NewAccumulator(chatLog, sanitizer, opts.Sentinels),
		requests: make(map[string]struct{}),
		retired:  make(map[string]struct{}),
	}
	o.current = o.snapshot()
	return o, nil
}

// Start begins processing and connects the transport.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.adapter.OnEvent(func(ev events.Event) {
		o.queue.push(func() { o.apply(ev) })
	})
	go func() {
		defer close(o.done)
		o.queue.run(o.ctx)
	}()

	if err := o.adapter.Connect(ctx); err != nil {
		o.logger.Error(module, "Transport connect failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	o.logger.Info(module, "Started", map[string]interface{}{"mode": o.adapter.Mode()})
	return nil
}

// Dispose stops the queue and releases the transport. Safe to call twice.
func (o *Orchestrator) Dispose() error {
	var err error
	o.once.Do(func() {
		if o.cancel != nil {
			o.cancel()
			<-o.done
		}
		err = o.adapter.Close()
		if o.watchdog != nil {
			o.watchdog.Stop()
		}
		o.endSpan(nil, "disposed")
		if cerr := o.updates.close(); err == nil {
			err = cerr
		}
	})
	return err
}

// CreateSession discards the current conversation and asks the backend for a
// new session. It is accepted from every state.
func (o *Orchestrator) CreateSession(ctx context.Context) error {
	return o.do(ctx, o.createSession)
}

// SubmitUserMessage sends one user turn. Only a ready session, or a failed
// one that still holds a session id, accepts it.
func (o *Orchestrator) SubmitUserMessage(ctx context.Context, text string) error {
	return o.do(ctx, func() error { return o.submit(strings.TrimSpace(text)) })
}

// RefreshStage asks the backend once for the status of the awaited stage.
func (o *Orchestrator) RefreshStage(ctx context.Context) error {
	return o.do(ctx, o.refresh)
}

// Log returns a copy of the conversation log.
func (o *Orchestrator) Log() []message.Message {
	return o.Snapshot().Messages
}

// Status returns the projected UI status.
func (o *Orchestrator) Status() status.View {
	return o.Snapshot().Status
}

// Snapshot returns the state after the last applied transition.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.current
}

// Updates streams a snapshot after every applied transition.
func (o *Orchestrator) Updates(ctx context.Context) (<-chan Snapshot, error) {
	return o.updates.subscribe(ctx)
}

// do runs fn on the queue and waits for its result.
func (o *Orchestrator) do(ctx context.Context, fn func() error) error {
	if o.ctx == nil {
		return errors.New("orchestrator not started")
	}
	if o.ctx.Err() != nil {
		return ErrDisposed
	}
	res := make(chan error, 1)
	o.queue.push(func() { res <- fn() })
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrDisposed
	}
}

func (o *Orchestrator) createSession() error {
	previous := o.sessionID

	o.adapter.CancelSchedule()
	o.stopWatchdog()
	o.acc.Reset()
	o.log.Reset()
	o.activity = nil
	if previous != "" {
		o.retired[previous] = struct{}{}
	}
	o.sessionID = ""
	o.requests = make(map[string]struct{})
	o.turn = 0
	if _, err := o.log.Append(message.RoleSystem, o.opts.Greeting); err != nil {
		return err
	}
	if err := o.machine.Move(state.Creating); err != nil {
		return err
	}

	if o.opts.DeleteOnReset && previous != "" {
		// Fire and forget: its request id is not tracked, so any reply is stale.
		del := events.Action{Kind: events.ActionDeleteSession, RequestID: uuid.NewString(), SessionID: previous, UserID: o.opts.UserID}
		if err := o.adapter.Send(o.ctx, del); err != nil {
			o.logger.Warn(module, "Delete previous session failed", map[string]interface{}{"session_id": previous, "error": err.Error()})
		}
	}

	o.beginSpan("chat.session.create")
	act := events.Action{Kind: events.ActionCreateSession, RequestID: uuid.NewString(), UserID: o.opts.UserID}
	o.createReq = act.RequestID
	if err := o.send(act); err != nil {
		o.failTurn(err)
		o.publish()
		return err
	}
	o.armWatchdog()
	o.logger.Info(module, "Creating session", map[string]interface{}{"request_id": act.RequestID, "previous": previous})
	o.publish()
	return nil
}

func (o *Orchestrator) submit(text string) error {
	w := o.machine.Current()
	if !(w == state.Ready || (w == state.Failed && o.sessionID != "")) {
		return &chaterr.ValidationError{Action: string(events.ActionSubmitMessage), State: w.String()}
	}
	act := events.Action{
		Kind:      events.ActionSubmitMessage,
		RequestID: uuid.NewString(),
		SessionID: o.sessionID,
		UserID:    o.opts.UserID,
		Text:      text,
	}
	if err := act.Validate(); err != nil {
		return err
	}

	if _, err := o.log.Append(message.RoleUser, text); err != nil {
		return err
	}
	if err := o.machine.Move(state.AnalyzingContext); err != nil {
		return err
	}
	o.turn++
	o.requests = make(map[string]struct{})
	o.beginSpan("chat.turn")
	o.spanStage(state.StageAnalyzingContext)

	if err := o.send(act); err != nil {
		o.failTurn(err)
		o.publish()
		return err
	}
	o.armWatchdog()
	o.logger.Info(module, "User message submitted", map[string]interface{}{"session_id": o.sessionID, "turn": o.turn})
	o.publish()
	return nil
}

func (o *Orchestrator) refresh() error {
	stage, ok := o.machine.Current().Stage()
	if !ok {
		return &chaterr.ValidationError{Action: string(events.ActionGetStageStatus), State: o.machine.Current().String()}
	}
	return o.send(events.Action{
		Kind:      events.ActionGetStageStatus,
		RequestID: uuid.NewString(),
		SessionID: o.sessionID,
		UserID:    o.opts.UserID,
		Stage:     stage,
	})
}

// send tracks the request id so replies can be attributed to this turn.
func (o *Orchestrator) send(act events.Action) error {
	if act.RequestID != "" {
		o.requests[act.RequestID] = struct{}{}
	}
	return o.adapter.Send(o.ctx, act)
}

// armWatchdog bounds push-mode requests that never resolve.
func (o *Orchestrator) armWatchdog() {
	o.stopWatchdog()
	if o.adapter.Mode() != transport.ModePush || o.opts.TurnTimeout <= 0 {
		return
	}
	turn, session, started := o.turn, o.sessionID, time.Now()
	o.watchdog = time.AfterFunc(o.opts.TurnTimeout, func() {
		o.queue.push(func() {
			if o.turn != turn || o.sessionID != session || !o.machine.Current().InFlight() {
				return
			}
			stage, _ := o.machine.Current().Stage()
			o.failTurn(&chaterr.StageTimeout{Stage: string(stage), Elapsed: time.Since(started)})
			o.publish()
		})
	})
}

func (o *Orchestrator) stopWatchdog() {
	if o.watchdog != nil {
		o.watchdog.Stop()
		o.watchdog = nil
	}
}
