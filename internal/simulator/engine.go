package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"promochat/internal/constant"
	"promochat/internal/dto"
	"promochat/internal/pkg/logger"
	"promochat/internal/repository/memory"
	"promochat/pkg/chat/state"

	"github.com/google/uuid"
)

const module = "Simulator"

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrEmptyMessage = errors.New("message is required")
)

// triggered lists stages the polling protocol starts with a create request.
var triggered = map[state.Stage]bool{
	state.StageFetchingContextDetail: true,
	state.StageSynthesizingResponse:  true,
}

// Engine plays a scenario against the chats in its repository.
type Engine struct {
	scenario *Scenario
	chats    *memory.ChatRepository
	logger   logger.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(sc *Scenario, chats *memory.ChatRepository, log logger.ILogger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{scenario: sc, chats: chats, logger: log, ctx: ctx, cancel: cancel}
}

func (e *Engine) Scenario() *Scenario { return e.scenario }

func (e *Engine) CreateChat(userID string) *memory.Chat {
	chat := e.chats.Create(userID)
	e.logger.Info(module, "Chat created", map[string]interface{}{"chat_id": chat.ID, "user_id": userID})
	return chat
}

func (e *Engine) DeleteChat(chatID string) error {
	if !e.chats.Delete(chatID) {
		return ErrChatNotFound
	}
	e.logger.Info(module, "Chat deleted", map[string]interface{}{"chat_id": chatID})
	return nil
}

// Submit records a user message and starts a new turn.
func (e *Engine) Submit(chatID, text string) (*memory.Chat, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	chat, ok := e.chats.Get(chatID)
	if !ok {
		return nil, ErrChatNotFound
	}
	chat.Mu.Lock()
	defer chat.Mu.Unlock()
	chat.Messages = append(chat.Messages, dto.ChatMessageDTO{UserType: constant.PushMessageTypeUser, Message: text})
	chat.ResetTurn()
	e.logger.Debug(module, "User message", map[string]interface{}{"chat_id": chatID, "turn": chat.Turn})
	return chat, nil
}

// Trigger starts a stage that the polling protocol creates explicitly.
func (e *Engine) Trigger(chatID string, stage state.Stage) error {
	chat, ok := e.chats.Get(chatID)
	if !ok {
		return ErrChatNotFound
	}
	chat.Mu.Lock()
	chat.Triggered[stage] = true
	chat.Mu.Unlock()
	return nil
}

// Status answers one poll for a stage in the polling protocol's vocabulary.
func (e *Engine) Status(chatID string, stage state.Stage) (dto.StageStatusResponse, error) {
	chat, ok := e.chats.Get(chatID)
	if !ok {
		return dto.StageStatusResponse{}, ErrChatNotFound
	}
	chat.Mu.Lock()
	defer chat.Mu.Unlock()

	if chat.Turn == 0 || (triggered[stage] && !chat.Triggered[stage]) {
		return dto.StageStatusResponse{Status: constant.PollStatusReady, Action: constant.PollActionNoRun}, nil
	}

	script := e.scenario.Script(stage)
	chat.Polls[stage]++
	if chat.Polls[stage] <= script.Running || script.Outcome == OutcomeSilent {
		return dto.StageStatusResponse{Status: constant.PollStatusRunning, Action: constant.PollActionRunInProgress}, nil
	}

	switch script.Outcome {
	case OutcomeError:
		return dto.StageStatusResponse{
			Status:  constant.PollStatusError,
			Action:  constant.PollActionUnexpectedResponse,
			Message: jsonString(script.Text),
		}, nil
	case OutcomeFollowUp:
		chat.Messages = append(chat.Messages, dto.ChatMessageDTO{UserType: constant.PushMessageTypeAssistant, Message: script.Text})
		return dto.StageStatusResponse{
			Status:  constant.PollStatusReady,
			Action:  constant.PollActionFollowUpQuestion,
			Message: jsonString(script.Text),
			Context: mustJSON(script.Context),
		}, nil
	}

	resp := dto.StageStatusResponse{Status: constant.PollStatusReady}
	switch stage {
	case state.StageAnalyzingContext:
		resp.Action = constant.PollActionContextFound
		resp.Context = mustJSON(script.Context)
	case state.StageFetchingContextDetail:
		resp.Action = constant.PollActionContextDetailsFound
		resp.ContextDetails = mustJSON(script.Context)
	case state.StageSearchingResult:
		if len(script.Results) == 0 {
			resp.Action = constant.PollActionPromotionsNotFound
			break
		}
		resp.Action = constant.PollActionPromotionsFound
		resp.Promotions = mustJSON(script.Results)
	case state.StageSynthesizingResponse:
		chat.Messages = append(chat.Messages, dto.ChatMessageDTO{UserType: constant.PushMessageTypeAssistant, Message: answer(script)})
		resp.Action = constant.PollActionResponseAdded
		resp.Message = mustJSON(chat.Messages)
	}
	return resp, nil
}

// Reply is one inbound envelope addressed to the client that started a turn.
type Reply func(eventType, requestID, chatID string, data any)

// Play pushes a whole turn through reply, stage after stage. A newer turn or
// a deletion of the chat cancels it.
func (e *Engine) Play(chat *memory.Chat, requestID string, reply Reply) {
	ctx, cancel := context.WithCancel(e.ctx)
	chat.Mu.Lock()
	chat.ReplacePlayback(cancel)
	chat.Mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.play(ctx, chat, requestID, reply)
	}()
}

func (e *Engine) play(ctx context.Context, chat *memory.Chat, requestID string, reply Reply) {
	started := time.Now()
	send := func(eventType string, data any) bool {
		if ctx.Err() != nil {
			return false
		}
		reply(eventType, requestID, chat.ID, data)
		return true
	}
	activity := func(header, body string) bool {
		return send(constant.PushTypeActivity, dto.ActivityData{
			MessageHeader: header,
			MessageBody:   body,
			ElapsedTime:   elapsed(started),
		})
	}

	for _, stage := range state.Pipeline {
		script := e.scenario.Script(stage)
		select {
		case <-ctx.Done():
			return
		case <-time.After(script.Delay):
		}

		switch script.Outcome {
		case OutcomeSilent:
			e.logger.Debug(module, "Playback stalls", map[string]interface{}{"chat_id": chat.ID, "stage": stage})
			return
		case OutcomeError:
			activity("error", script.Text)
			send(constant.PushTypeError, dto.ErrorData{ErrorCode: "500", ErrorMessage: script.Text})
			return
		case OutcomeFollowUp:
			e.record(chat, script.Text)
			activity(constant.ActivityFollowUpQuestion, script.Text)
			send(constant.PushTypeChat, dto.ChatData{
				Message:     script.Text,
				MessageType: constant.PushMessageTypeFollowUp,
				Context:     mustJSON(script.Context),
			})
			return
		}

		if stage == state.StageSynthesizingResponse {
			text := answer(script)
			e.record(chat, text)
			if len(script.Stream) > 0 {
				if !e.stream(send, constant.PushMessageTypeAssistant, script.Stream) {
					return
				}
				send(constant.PushTypeStageResult, dto.StageResultData{Stage: string(stage), Outcome: OutcomeFound})
				return
			}
			send(constant.PushTypeStageResult, dto.StageResultData{
				Stage:    string(stage),
				Outcome:  OutcomeFound,
				Messages: []dto.ChatMessageDTO{{UserType: constant.PushMessageTypeAssistant, Message: text}},
			})
			return
		}

		if len(script.Stream) > 0 && !e.stream(send, constant.PushMessageTypeSystem, script.Stream) {
			return
		}
		if script.Notice != "" && !send(constant.PushTypeChat, dto.ChatData{Message: script.Notice, MessageType: constant.PushMessageTypeSystem}) {
			return
		}

		var ok bool
		switch stage {
		case state.StageAnalyzingContext:
			ok = activity(constant.ActivityContextFound, string(mustJSON(script.Context)))
		case state.StageFetchingContextDetail:
			ok = activity(constant.ActivityContextDetailsFound, string(mustJSON(script.Context)))
		case state.StageSearchingResult:
			if len(script.Results) == 0 {
				ok = activity(constant.ActivityPromotionsNotFound, "")
			} else {
				ok = activity(constant.ActivityPromotionsFound, string(mustJSON(script.Results)))
			}
		}
		if !ok {
			return
		}
	}
}

func (e *Engine) stream(send func(string, any) bool, role string, parts []string) bool {
	for _, part := range parts {
		if !send(constant.PushTypeChatDelta, dto.ChatDeltaData{Message: part, MessageType: role}) {
			return false
		}
	}
	return send(constant.PushTypeChatDelta, dto.ChatDeltaData{MessageType: role, IsCompleted: true})
}

func (e *Engine) record(chat *memory.Chat, text string) {
	chat.Mu.Lock()
	chat.Messages = append(chat.Messages, dto.ChatMessageDTO{UserType: constant.PushMessageTypeAssistant, Message: text})
	chat.Mu.Unlock()
}

// Close stops every playback and waits for them to return.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// NewEventID stamps pushed envelopes so clients can drop redeliveries.
func NewEventID() string {
	return uuid.NewString()
}

func answer(script StageScript) string {
	if script.Text != "" {
		return script.Text
	}
	return strings.Join(script.Stream, "")
}

// elapsed renders seconds with two decimals, as the activity report shows them.
func elapsed(since time.Time) string {
	return strconv.FormatFloat(time.Since(since).Seconds(), 'f', 2, 64)
}

func jsonString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

func mustJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return nil
	}
	return raw
}
