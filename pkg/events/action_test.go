package events

import (
	"strings"
	"testing"

	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"

	"github.com/stretchr/testify/assert"
)

func TestActionValidate(t *testing.T) {
	tests := []struct {
		name string
		act  Action
		ok   bool
	}{
		{"create", Action{Kind: ActionCreateSession, UserID: "1"}, true},
		{"submit", Action{Kind: ActionSubmitMessage, SessionID: "1", Text: "hi"}, true},
		{"submit without session", Action{Kind: ActionSubmitMessage, Text: "hi"}, false},
		{"submit without text", Action{Kind: ActionSubmitMessage, SessionID: "1"}, false},
		{"submit too long", Action{Kind: ActionSubmitMessage, SessionID: "1", Text: strings.Repeat("ก", MaxMessageLength+1)}, false},
		{"advance", Action{Kind: ActionAdvanceStage, SessionID: "1", Stage: state.StageSearchingResult}, true},
		{"advance without stage", Action{Kind: ActionAdvanceStage, SessionID: "1"}, false},
		{"poll unknown stage", Action{Kind: ActionGetStageStatus, SessionID: "1", Stage: "ready"}, false},
		{"delete", Action{Kind: ActionDeleteSession, SessionID: "1"}, true},
		{"unknown kind", Action{Kind: "shout"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.act.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, chaterr.IsValidation(err))
		})
	}
}

func TestPayloadLastAssistant(t *testing.T) {
	p := Payload{Messages: []PayloadMessage{
		{Role: "assistant", Text: "first"},
		{Role: "assistant", Text: "second"},
		{Role: "user", Text: "question"},
	}}
	text, ok := p.LastAssistant()
	assert.True(t, ok)
	assert.Equal(t, "second", text)

	_, ok = Payload{}.LastAssistant()
	assert.False(t, ok)
}
