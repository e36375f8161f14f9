package codec

import (
	"encoding/json"
	"testing"

	"promochat/internal/dto"
	"promochat/pkg/chat/message"
	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAction(t *testing.T) {
	raw, err := EncodeRoutedAction(events.Action{
		Kind:      events.ActionSubmitMessage,
		RequestID: "r1",
		SessionID: "12",
		UserID:    "3",
		Text:      "สวัสดี",
	}, "client-a")
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"action": "new_user_message",
		"request_id": "r1",
		"client_id": "client-a",
		"data": {"chat_id": 12, "user_id": "3", "message": "สวัสดี"}
	}`, string(raw))

	act, clientID, err := DecodeAction(raw)
	require.NoError(t, err)
	assert.Equal(t, "client-a", clientID)
	assert.Equal(t, events.ActionSubmitMessage, act.Kind)
	assert.Equal(t, "12", act.SessionID)
	assert.Equal(t, "สวัสดี", act.Text)
}

func TestDecodeActionUnknown(t *testing.T) {
	_, _, err := DecodeAction([]byte(`{"action":"dance","data":{}}`))
	var protoErr *chaterr.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, evs []events.Event)
	}{
		{
			name:  "new chat info with numeric id",
			frame: `{"type":"new_chat_info","data":{"chat_id":5,"user_id":1}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 1)
				created, ok := evs[0].(events.SessionCreated)
				require.True(t, ok)
				assert.Equal(t, "5", created.SessionID)
			},
		},
		{
			name:  "user echo is dropped",
			frame: `{"type":"chat","data":{"message":"hi","message_type":"user"}}`,
			check: func(t *testing.T, evs []events.Event) {
				assert.Empty(t, evs)
			},
		},
		{
			name:  "assistant chat",
			frame: `{"type":"chat","event_id":"e1","data":{"message":"ลด 20%","message_type":"assistant"}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 1)
				final, ok := evs[0].(events.FinalMessage)
				require.True(t, ok)
				assert.Equal(t, message.RoleAssistant, final.Role)
				assert.Equal(t, "e1", final.EventID)
			},
		},
		{
			name:  "follow up question",
			frame: `{"type":"chat","data":{"message":"ประเภทไหนคะ","message_type":"follow_up_question"}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 1)
				res, ok := evs[0].(events.StageResult)
				require.True(t, ok)
				assert.Equal(t, events.OutcomeFollowUp, res.Outcome)
				assert.Empty(t, res.Stage)
				assert.Equal(t, "ประเภทไหนคะ", res.Payload.Text)
			},
		},
		{
			name:  "delta",
			frame: `{"type":"chat_delta","data":{"message":"กำลัง","message_type":"system","is_completed":false}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 1)
				d, ok := evs[0].(events.Delta)
				require.True(t, ok)
				assert.Equal(t, message.RoleSystem, d.Role)
				assert.False(t, d.IsFinal)
			},
		},
		{
			name:  "activity tagging a stage",
			frame: `{"type":"activity","event_id":"a1","data":{"message_header":"promotions_found","message_body":"[{\"id\":1}]","elasped_time":"1.2"}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 2)
				act, ok := evs[0].(events.Activity)
				require.True(t, ok)
				assert.Equal(t, "1.2", act.Elapsed)
				res, ok := evs[1].(events.StageResult)
				require.True(t, ok)
				assert.Equal(t, state.StageSearchingResult, res.Stage)
				assert.Len(t, res.Payload.Results, 1)
				assert.NotEqual(t, act.EventID, res.EventID)
			},
		},
		{
			name:  "plain activity",
			frame: `{"type":"activity","data":{"message_header":"follow_up_question","message_body":"x","elasped_time":"0.1"}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 1)
				_, ok := evs[0].(events.Activity)
				assert.True(t, ok)
			},
		},
		{
			name:  "error",
			frame: `{"type":"error","data":{"error_code":"404","error_message":"Chat not found"}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 1)
				e, ok := evs[0].(events.ServerError)
				require.True(t, ok)
				assert.Equal(t, "404", e.Code)
			},
		},
		{
			name:  "explicit stage result",
			frame: `{"type":"stage_result","chat_id":"9","data":{"stage":"synthesizing_response","outcome":"found","messages":[{"user_type":"assistant","message":"done"}]}}`,
			check: func(t *testing.T, evs []events.Event) {
				require.Len(t, evs, 1)
				res, ok := evs[0].(events.StageResult)
				require.True(t, ok)
				assert.Equal(t, "9", res.SessionID)
				text, ok := res.Payload.LastAssistant()
				assert.True(t, ok)
				assert.Equal(t, "done", text)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs, err := DecodeEvent([]byte(tt.frame))
			require.NoError(t, err)
			tt.check(t, evs)
		})
	}
}

func TestDecodeEventErrors(t *testing.T) {
	frames := map[string]string{
		"not json":           `{`,
		"unknown type":       `{"type":"telepathy","data":{}}`,
		"missing data":       `{"type":"chat"}`,
		"bad stage":          `{"type":"stage_result","data":{"stage":"nowhere","outcome":"found"}}`,
		"bad outcome":        `{"type":"stage_result","data":{"stage":"searching_result","outcome":"maybe"}}`,
		"chat id missing":    `{"type":"new_chat_info","data":{"user_id":1}}`,
		"unknown delta role": `{"type":"chat_delta","data":{"message":"x","message_type":"robot"}}`,
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(frame))
			var protoErr *chaterr.ProtocolError
			assert.ErrorAs(t, err, &protoErr)
		})
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	raw, err := EncodeEvent("chat_delta", "e9", "", "3", dto.ChatDeltaData{Message: "ab", MessageType: "assistant", IsCompleted: true})
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.JSONEq(t, `3`, string(env["chat_id"]))

	evs, err := DecodeEvent(raw)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	d := evs[0].(events.Delta)
	assert.True(t, d.IsFinal)
	assert.Equal(t, "3", d.SessionID)
}
