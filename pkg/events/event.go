package events

import (
	"encoding/json"
	"time"

	"promochat/pkg/chat/message"
	"promochat/pkg/chat/state"
)

// Event is the closed set of inbound notifications a transport can deliver.
// Dispatch with a type switch; the unexported marker keeps the set sealed.
type Event interface {
	// EventType returns the wire name of the event (e.g. "stage_result").
	EventType() string

	// Header returns the correlation data common to every event.
	Header() Meta

	// Timestamp returns when the event was received.
	Timestamp() time.Time

	sealed()
}

// Handler consumes inbound events.
type Handler func(Event)

// Meta carries correlation data. Empty fields mean "not attributable".
type Meta struct {
	EventID    string    `json:"event_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

func (m Meta) Header() Meta         { return m }
func (m Meta) Timestamp() time.Time { return m.ReceivedAt }
func (Meta) sealed()                {}

// Outcome is the resolution reported for a pipeline stage.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeFollowUp Outcome = "follow_up"
	OutcomeRunning  Outcome = "running"
	OutcomeError    Outcome = "error"
)

// PayloadMessage is one conversation entry echoed back by the backend.
type PayloadMessage struct {
	Role message.Role `json:"role"`
	Text string       `json:"text"`
}

// Payload is the stage-specific body of a StageResult.
type Payload struct {
	Text     string            `json:"text,omitempty"`
	Context  json.RawMessage   `json:"context,omitempty"`
	Results  []json.RawMessage `json:"results,omitempty"`
	Messages []PayloadMessage  `json:"messages,omitempty"`
}

// LastAssistant returns the text of the last assistant-role entry.
func (p Payload) LastAssistant() (string, bool) {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == message.RoleAssistant {
			return p.Messages[i].Text, true
		}
	}
	return "", false
}

// SessionCreated confirms a create_session action; Meta.SessionID is the new id.
type SessionCreated struct {
	Meta
}

func (SessionCreated) EventType() string { return "session_created" }

// StageResult reports the outcome of one pipeline stage.
type StageResult struct {
	Meta
	Stage   state.Stage
	Outcome Outcome
	Payload Payload
}

func (StageResult) EventType() string { return "stage_result" }

// Delta is an incremental fragment of a message being generated.
type Delta struct {
	Meta
	Role    message.Role
	Text    string
	IsFinal bool
}

func (Delta) EventType() string { return "delta" }

// FinalMessage is a complete message pushed by the backend.
type FinalMessage struct {
	Meta
	Role message.Role
	Text string
}

func (FinalMessage) EventType() string { return "final_message" }

// Accepted acknowledges a one-shot request that produces no other event,
// such as a message submission or a stage trigger.
type Accepted struct {
	Meta
	Action ActionKind
	Stage  state.Stage
}

func (Accepted) EventType() string { return "accepted" }

// Activity is an entry of the backend's AI activity report.
type Activity struct {
	Meta
	Title   string
	Body    string
	Elapsed string
}

func (Activity) EventType() string { return "activity" }

// ServerError is an error reported by the backend itself.
type ServerError struct {
	Meta
	Code    string
	Message string
}

func (ServerError) EventType() string { return "server_error" }

// TransportFailure reports a request or connection the adapter could not complete.
type TransportFailure struct {
	Meta
	Err error
}

func (TransportFailure) EventType() string { return "transport_failure" }

// StageTimeout reports a stage that did not resolve within the poll budget.
type StageTimeout struct {
	Meta
	Stage   state.Stage
	Polls   int
	Elapsed time.Duration
}

func (StageTimeout) EventType() string { return "stage_timeout" }

// ConnectionChanged reports a connection status transition of a push adapter.
type ConnectionChanged struct {
	Meta
	Status string
	Err    error
}

func (ConnectionChanged) EventType() string { return "connection_changed" }

// Now returns a Meta stamped with the current time.
func Now() Meta {
	return Meta{ReceivedAt: time.Now()}
}
