// Package codec translates between logical actions/events and the push
// backend's JSON envelopes: {action, data} outbound and {type, data} inbound.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"promochat/internal/constant"
	"promochat/internal/dto"
	"promochat/pkg/chat/message"
	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
)

var actionNames = map[events.ActionKind]string{
	events.ActionCreateSession:  constant.PushActionNewChat,
	events.ActionSubmitMessage:  constant.PushActionUserMessage,
	events.ActionAdvanceStage:   constant.PushActionAdvance,
	events.ActionGetStageStatus: constant.PushActionStatus,
	events.ActionDeleteSession:  constant.PushActionDeleteChat,
}

// EncodeAction renders an action as an outbound envelope.
func EncodeAction(a events.Action) ([]byte, error) {
	return EncodeRoutedAction(a, "")
}

// EncodeRoutedAction renders an action that names the client to reply to.
func EncodeRoutedAction(a events.Action, clientID string) ([]byte, error) {
	name, ok := actionNames[a.Kind]
	if !ok {
		return nil, fmt.Errorf("encode action: unknown kind %q", a.Kind)
	}
	return json.Marshal(dto.PushRequest{
		Action:    name,
		RequestID: a.RequestID,
		ClientID:  clientID,
		Data: dto.PushRequestData{
			ChatID:  dto.FlexibleID(a.SessionID),
			UserID:  a.UserID,
			Message: a.Text,
			Stage:   string(a.Stage),
		},
	})
}

// DecodeAction parses an outbound envelope back into an action and the
// client id it is routed from. Backends and test doubles use it to read what
// the client sent.
func DecodeAction(raw []byte) (events.Action, string, error) {
	var req dto.PushRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return events.Action{}, "", &chaterr.ProtocolError{Reason: "decode action", Err: err}
	}
	for kind, name := range actionNames {
		if name == req.Action {
			return events.Action{
				Kind:      kind,
				RequestID: req.RequestID,
				SessionID: req.Data.ChatID.String(),
				UserID:    req.Data.UserID,
				Text:      req.Data.Message,
				Stage:     state.Stage(req.Data.Stage),
			}, req.ClientID, nil
		}
	}
	return events.Action{}, "", &chaterr.ProtocolError{Reason: fmt.Sprintf("unknown action %q", req.Action)}
}

// EncodeEvent wraps data in an inbound envelope.
func EncodeEvent(eventType, eventID, requestID, chatID string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(dto.PushEvent{
		Type:      eventType,
		EventID:   eventID,
		RequestID: requestID,
		ChatID:    dto.FlexibleID(chatID),
		Data:      body,
	})
}

// stageTags maps activity headers that name a finished stage.
var stageTags = map[string]state.Stage{
	constant.ActivityContextFound:        state.StageAnalyzingContext,
	constant.ActivityContextDetailsFound: state.StageFetchingContextDetail,
	constant.ActivityPromotionsFound:     state.StageSearchingResult,
	constant.ActivityPromotionsNotFound:  state.StageSearchingResult,
}

// DecodeEvent parses one inbound envelope. It returns no event for frames
// that carry nothing the client acts on, such as echoes of the user's own
// message, and two events for activity entries that also tag a stage.
func DecodeEvent(raw []byte) ([]events.Event, error) {
	var env dto.PushEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &chaterr.ProtocolError{Reason: "decode envelope", Err: err}
	}
	meta := events.Meta{
		EventID:    env.EventID,
		SessionID:  env.ChatID.String(),
		RequestID:  env.RequestID,
		ReceivedAt: time.Now(),
	}

	switch env.Type {
	case constant.PushTypeNewChatInfo:
		var d dto.NewChatInfoData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		if d.ChatID == "" {
			return nil, &chaterr.ProtocolError{Reason: "new_chat_info without chat_id"}
		}
		meta.SessionID = d.ChatID.String()
		return []events.Event{events.SessionCreated{Meta: meta}}, nil

	case constant.PushTypeChat:
		var d dto.ChatData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		return decodeChat(meta, d)

	case constant.PushTypeChatDelta:
		var d dto.ChatDeltaData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		role, err := message.ParseRole(d.MessageType)
		if err != nil {
			return nil, &chaterr.ProtocolError{Reason: "chat_delta", Err: err}
		}
		return []events.Event{events.Delta{Meta: meta, Role: role, Text: d.Message, IsFinal: d.IsCompleted}}, nil

	case constant.PushTypeActivity:
		var d dto.ActivityData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		out := []events.Event{events.Activity{Meta: meta, Title: d.MessageHeader, Body: d.MessageBody, Elapsed: d.ElapsedTime}}
		if stage, ok := stageTags[d.MessageHeader]; ok {
			tagged := meta
			if tagged.EventID != "" {
				tagged.EventID += "#stage"
			}
			out = append(out, events.StageResult{
				Meta:    tagged,
				Stage:   stage,
				Outcome: events.OutcomeFound,
				Payload: activityPayload(d),
			})
		}
		return out, nil

	case constant.PushTypeError:
		var d dto.ErrorData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		return []events.Event{events.ServerError{Meta: meta, Code: d.ErrorCode, Message: d.ErrorMessage}}, nil

	case constant.PushTypeStageResult:
		var d dto.StageResultData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		ev, err := decodeStageResult(meta, d)
		if err != nil {
			return nil, err
		}
		return []events.Event{ev}, nil
	}
	return nil, &chaterr.ProtocolError{Reason: fmt.Sprintf("unknown event type %q", env.Type)}
}

func decodeChat(meta events.Meta, d dto.ChatData) ([]events.Event, error) {
	switch d.MessageType {
	case constant.PushMessageTypeUser:
		return nil, nil
	case constant.PushMessageTypeFollowUp:
		return []events.Event{events.StageResult{
			Meta:    meta,
			Outcome: events.OutcomeFollowUp,
			Payload: events.Payload{Text: d.Message, Context: d.Context},
		}}, nil
	}
	role, err := message.ParseRole(d.MessageType)
	if err != nil {
		return nil, &chaterr.ProtocolError{Reason: "chat", Err: err}
	}
	return []events.Event{events.FinalMessage{Meta: meta, Role: role, Text: d.Message}}, nil
}

func decodeStageResult(meta events.Meta, d dto.StageResultData) (events.Event, error) {
	var stage state.Stage
	if d.Stage != "" {
		s, err := state.ParseStage(d.Stage)
		if err != nil {
			return nil, &chaterr.ProtocolError{Reason: "stage_result", Err: err}
		}
		stage = s
	}
	outcome := events.Outcome(d.Outcome)
	switch outcome {
	case events.OutcomeFound, events.OutcomeFollowUp, events.OutcomeRunning, events.OutcomeError:
	default:
		return nil, &chaterr.ProtocolError{Reason: fmt.Sprintf("stage_result outcome %q", d.Outcome)}
	}
	payload := events.Payload{Text: d.Text, Context: d.Context, Results: d.Results}
	msgs, err := PayloadMessages(d.Messages)
	if err != nil {
		return nil, err
	}
	payload.Messages = msgs
	return events.StageResult{Meta: meta, Stage: stage, Outcome: outcome, Payload: payload}, nil
}

// PayloadMessages converts wire chat messages, rejecting unknown roles.
func PayloadMessages(in []dto.ChatMessageDTO) ([]events.PayloadMessage, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]events.PayloadMessage, 0, len(in))
	for _, m := range in {
		role, err := message.ParseRole(m.UserType)
		if err != nil {
			return nil, &chaterr.ProtocolError{Reason: "payload message", Err: err}
		}
		out = append(out, events.PayloadMessage{Role: role, Text: m.Message})
	}
	return out, nil
}

func activityPayload(d dto.ActivityData) events.Payload {
	p := events.Payload{Text: d.MessageBody}
	if d.MessageHeader == constant.ActivityPromotionsFound {
		var results []json.RawMessage
		if json.Unmarshal([]byte(d.MessageBody), &results) == nil {
			p.Results = results
		} else if raw, err := json.Marshal(d.MessageBody); err == nil {
			p.Results = []json.RawMessage{raw}
		}
	}
	return p
}

func unmarshalData(env dto.PushEvent, v any) error {
	if len(env.Data) == 0 {
		return &chaterr.ProtocolError{Reason: env.Type + " without data"}
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return &chaterr.ProtocolError{Reason: "decode " + env.Type, Err: err}
	}
	return nil
}
