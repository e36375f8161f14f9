package events

import (
	"fmt"
	"sync"

	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"

	"github.com/go-playground/validator/v10"
)

// ActionKind names a logical outbound action, independent of transport.
type ActionKind string

const (
	ActionCreateSession  ActionKind = "create_session"
	ActionSubmitMessage  ActionKind = "submit_message"
	ActionGetStageStatus ActionKind = "get_stage_status"
	ActionAdvanceStage   ActionKind = "advance_stage"
	ActionDeleteSession  ActionKind = "delete_session"
)

// MaxMessageLength bounds the text of a single user message.
const MaxMessageLength = 4000

// Action is an outbound request. RequestID correlates responses that the
// transport can attribute (polling) with the request that caused them.
type Action struct {
	Kind      ActionKind  `json:"action" validate:"required,oneof=create_session submit_message get_stage_status advance_stage delete_session"`
	RequestID string      `json:"request_id,omitempty"`
	SessionID string      `json:"session_id,omitempty" validate:"required_unless=Kind create_session"`
	UserID    string      `json:"user_id,omitempty"`
	Text      string      `json:"text,omitempty" validate:"required_if=Kind submit_message,max=4000"`
	Stage     state.Stage `json:"stage,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func actionValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(validateStage, Action{})
	})
	return validate
}

func validateStage(sl validator.StructLevel) {
	a := sl.Current().Interface().(Action)
	switch a.Kind {
	case ActionGetStageStatus, ActionAdvanceStage:
		if _, err := state.ParseStage(string(a.Stage)); err != nil {
			sl.ReportError(a.Stage, "Stage", "stage", "stage", "")
		}
	}
}

// Validate checks the action payload before it may reach a transport.
func (a Action) Validate() error {
	if err := actionValidator().Struct(a); err != nil {
		return &chaterr.ValidationError{Action: string(a.Kind), Err: fmt.Errorf("payload: %w", err)}
	}
	return nil
}
