package simulator

import (
	"errors"
	"net/http"
	"strconv"

	"promochat/internal/constant"
	"promochat/internal/dto"
	"promochat/pkg/events"
	"promochat/pkg/transport/codec"
)

// HandleAction serves one action from a push client. Every envelope for that
// client goes through send.
func (e *Engine) HandleAction(act events.Action, send func(frame []byte)) {
	reply := func(eventType, requestID, chatID string, data any) {
		frame, err := codec.EncodeEvent(eventType, NewEventID(), requestID, chatID, data)
		if err != nil {
			e.logger.Error(module, "Encode event failed", map[string]interface{}{"type": eventType, "error": err.Error()})
			return
		}
		send(frame)
	}
	fail := func(err error) {
		code := http.StatusBadRequest
		if errors.Is(err, ErrChatNotFound) {
			code = http.StatusNotFound
		}
		reply(constant.PushTypeError, act.RequestID, act.SessionID, dto.ErrorData{
			ErrorCode:    strconv.Itoa(code),
			ErrorMessage: err.Error(),
		})
	}

	switch act.Kind {
	case events.ActionCreateSession:
		chat := e.CreateChat(act.UserID)
		reply(constant.PushTypeNewChatInfo, act.RequestID, "", dto.NewChatInfoData{
			ChatID: dto.FlexibleID(chat.ID),
			UserID: dto.FlexibleID(act.UserID),
		})

	case events.ActionSubmitMessage:
		chat, err := e.Submit(act.SessionID, act.Text)
		if err != nil {
			fail(err)
			return
		}
		reply(constant.PushTypeChat, act.RequestID, chat.ID, dto.ChatData{Message: act.Text, MessageType: constant.PushMessageTypeUser})
		e.Play(chat, act.RequestID, reply)

	case events.ActionGetStageStatus:
		// Push backends report stages on their own; a status request only
		// confirms the turn is still being worked on.
		if _, ok := e.chats.Get(act.SessionID); !ok {
			fail(ErrChatNotFound)
			return
		}
		reply(constant.PushTypeStageResult, act.RequestID, act.SessionID, dto.StageResultData{
			Stage:   string(act.Stage),
			Outcome: string(events.OutcomeRunning),
		})

	case events.ActionAdvanceStage:
		e.logger.Debug(module, "Ignoring advance on push transport", map[string]interface{}{"chat_id": act.SessionID, "stage": act.Stage})

	case events.ActionDeleteSession:
		if err := e.DeleteChat(act.SessionID); err != nil {
			e.logger.Warn(module, "Delete failed", map[string]interface{}{"chat_id": act.SessionID, "error": err.Error()})
		}
	}
}
