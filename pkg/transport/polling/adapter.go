// Package polling implements the request/poll transport against the REST
// chat backend.
package polling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"promochat/internal/constant"
	"promochat/internal/dto"
	"promochat/internal/pkg/logger"
	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"

	"github.com/gofiber/fiber/v2"
)

const module = "PollingTransport"

type Config struct {
	BaseURL string
	// Interval between two status requests of the active stage.
	Interval time.Duration
	// MaxPolls bounds consecutive "running" answers for one stage.
	MaxPolls int
	// StageBudget bounds the wall-clock time of one stage. Zero disables it.
	StageBudget time.Duration
	// MaxPollErrors bounds consecutive failed status requests.
	MaxPollErrors  int
	RequestTimeout time.Duration
}

type Adapter struct {
	transport.Emitter

	cfg    Config
	client *fiber.Client
	logger logger.ILogger

	mu     sync.Mutex
	status transport.Status
	ctx    context.Context
	cancel context.CancelFunc
	task   *pollTask
	wg     sync.WaitGroup
}

func NewAdapter(cfg Config, log logger.ILogger) *Adapter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: &fiber.Client{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal},
		logger: log,
		status: transport.StatusClosed,
	}
}

func (a *Adapter) Mode() transport.Mode { return transport.ModePolling }

func (a *Adapter) Status() transport.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Connect opens the handle. There is no persistent connection; requests are
// made per action and per poll tick.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &chaterr.TransportError{Op: "connect", Err: err}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == transport.StatusOpen {
		return nil
	}
	if a.Stopped() {
		return chaterr.NotOpen("connect")
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.status = transport.StatusOpen
	a.logger.Info(module, "Polling transport open", map[string]interface{}{"base_url": a.cfg.BaseURL})
	return nil
}

// Send issues the request in the background; its response arrives as one event.
func (a *Adapter) Send(ctx context.Context, act events.Action) error {
	if err := act.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	if a.status != transport.StatusOpen {
		a.mu.Unlock()
		return chaterr.NotOpen(string(act.Kind))
	}
	life := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		a.dispatch(life, act)
	}()
	return nil
}

func (a *Adapter) dispatch(ctx context.Context, act events.Action) {
	meta := transport.NewMeta(act.SessionID, act.RequestID)
	var (
		ev  events.Event
		err error
	)

	switch act.Kind {
	case events.ActionCreateSession:
		var resp dto.CreateChatResponse
		err = a.do(a.client.Post(a.url(constant.PollCreateChatPath)), dto.CreateChatRequest{UserID: act.UserID}, &resp)
		if err == nil && resp.Id == "" {
			err = &chaterr.ProtocolError{Reason: "create chat response without id"}
		}
		meta.SessionID = resp.Id.String()
		ev = events.SessionCreated{Meta: meta}

	case events.ActionSubmitMessage:
		body := dto.SubmitMessageRequest{UserID: act.UserID, Message: act.Text}
		err = a.do(a.client.Post(a.url(constant.PollSubmitMessagePath, act.SessionID)), body, nil)
		ev = events.Accepted{Meta: meta, Action: act.Kind, Stage: state.StageAnalyzingContext}

	case events.ActionAdvanceStage:
		var ep stageEndpoint
		if ep, err = endpointFor(act.Stage); err == nil && ep.trigger != "" {
			err = a.do(a.client.Post(a.url(ep.trigger, act.SessionID)), nil, nil)
		}
		ev = events.Accepted{Meta: meta, Action: act.Kind, Stage: act.Stage}

	case events.ActionGetStageStatus:
		var result events.StageResult
		result, err = a.pollOnce(act.SessionID, act.Stage)
		result.Meta = meta
		ev = result

	case events.ActionDeleteSession:
		err = a.do(a.client.Delete(a.url(constant.PollChatPath, act.SessionID)), nil, nil)
		ev = events.Accepted{Meta: meta, Action: act.Kind}

	default:
		err = fmt.Errorf("unsupported action %q", act.Kind)
	}

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		a.logger.Warn(module, "Request failed", map[string]interface{}{
			"action": act.Kind, "session_id": act.SessionID, "error": err.Error(),
		})
		meta.SessionID = act.SessionID
		a.Emit(events.TransportFailure{Meta: meta, Err: &chaterr.TransportError{Op: string(act.Kind), Err: err}})
		return
	}
	a.Emit(ev)
}

// pollOnce performs a single status request for a stage.
func (a *Adapter) pollOnce(sessionID string, stage state.Stage) (events.StageResult, error) {
	ep, err := endpointFor(stage)
	if err != nil {
		return events.StageResult{}, err
	}
	var resp dto.StageStatusResponse
	if err := a.do(a.client.Get(a.url(ep.status, sessionID)), nil, &resp); err != nil {
		return events.StageResult{}, err
	}
	outcome, payload, err := translate(resp)
	if err != nil {
		a.logger.Warn(module, "Unrecognised status body", map[string]interface{}{
			"stage": stage, "action": resp.Action, "error": err.Error(),
		})
	}
	return events.StageResult{Stage: stage, Outcome: outcome, Payload: payload}, nil
}

func (a *Adapter) do(agent *fiber.Agent, body any, out any) error {
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(a.cfg.RequestTimeout)

	code, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d", code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &chaterr.ProtocolError{Reason: "decode response", Err: err}
	}
	return nil
}

// Close stops the poll task and waits for in-flight requests. No event is
// emitted once Close has started.
func (a *Adapter) Close() error {
	a.Stop()
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.status = transport.StatusClosed
	a.stopTaskLocked()
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}
