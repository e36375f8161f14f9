package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleID accepts a chat id encoded either as a JSON number or string.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("chat id: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so integer-keyed backends accept them.
func (id FlexibleID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id FlexibleID) String() string {
	return string(id)
}

// Polling REST bodies

type CreateChatRequest struct {
	UserID string `json:"user_id"`
}

type CreateChatResponse struct {
	Id     FlexibleID `json:"id"`
	UserID FlexibleID `json:"user_id,omitempty"`
}

type SubmitMessageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type ChatMessageDTO struct {
	UserType string `json:"user_type"`
	Message  string `json:"message"`
}

type AssistantLogDTO struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StageStatusResponse is the body every polling status endpoint returns.
// Message is a string, an object or a list of ChatMessageDTO depending on
// the action.
type StageStatusResponse struct {
	Status         string            `json:"status"`
	Action         string            `json:"action"`
	Context        json.RawMessage   `json:"context,omitempty"`
	ContextDetails json.RawMessage   `json:"context_detais,omitempty"`
	Message        json.RawMessage   `json:"message,omitempty"`
	Promotions     json.RawMessage   `json:"promotions,omitempty"`
	AssistantLogs  []AssistantLogDTO `json:"assistant_logs,omitempty"`
}

// Push envelopes

// PushRequest is the outbound {action, data} envelope.
type PushRequest struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
	// ClientID names the reply subject on brokered transports.
	ClientID string          `json:"client_id,omitempty"`
	Data     PushRequestData `json:"data"`
}

type PushRequestData struct {
	ChatID  FlexibleID `json:"chat_id,omitempty"`
	UserID  string     `json:"user_id,omitempty"`
	Message string     `json:"message,omitempty"`
	Stage   string     `json:"stage,omitempty"`
}

// PushEvent is the inbound {type, data} envelope.
type PushEvent struct {
	Type      string          `json:"type"`
	EventID   string          `json:"event_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	ChatID    FlexibleID      `json:"chat_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type NewChatInfoData struct {
	ChatID FlexibleID `json:"chat_id"`
	UserID FlexibleID `json:"user_id"`
}

type ChatData struct {
	MessageID      FlexibleID      `json:"message_id,omitempty"`
	Message        string          `json:"message"`
	MessageType    string          `json:"message_type"`
	Context        json.RawMessage `json:"context,omitempty"`
	ContextDetails json.RawMessage `json:"context_details,omitempty"`
}

type ChatDeltaData struct {
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
	IsCompleted bool   `json:"is_completed"`
}

type ActivityData struct {
	MessageHeader string `json:"message_header"`
	MessageBody   string `json:"message_body"`
	ElapsedTime   string `json:"elasped_time"`
}

type ErrorData struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type StageResultData struct {
	Stage    string            `json:"stage"`
	Outcome  string            `json:"outcome"`
	Text     string            `json:"text,omitempty"`
	Context  json.RawMessage   `json:"context,omitempty"`
	Results  []json.RawMessage `json:"results,omitempty"`
	Messages []ChatMessageDTO  `json:"messages,omitempty"`
}
