// Package status derives the UI-facing status signal from the session state
// machine without exposing internal workflow states.
package status

import "promochat/pkg/chat/state"

// View is what the presentation layer renders next to the conversation.
type View struct {
	Busy         bool `json:"busy"`
	AnalysisDone bool `json:"analysis_done"`
	SearchDone   bool `json:"search_done"`
	ResultDone   bool `json:"result_done"`

	// Failed is set while the last turn ended in the failed state.
	Failed bool `json:"failed"`
	// CanSubmit tells the input box whether a new user message is accepted.
	CanSubmit bool `json:"can_submit"`
}

// Project is a pure function of the workflow state and the substage flags.
func Project(w state.Workflow, flags state.Flags) View {
	return View{
		Busy:         w != state.Ready,
		AnalysisDone: flags.AnalysisDone,
		SearchDone:   flags.SearchDone,
		ResultDone:   flags.ResultFound,
		Failed:       w == state.Failed,
		CanSubmit:    w == state.Ready,
	}
}

// WithRetry opens the input box after a failed turn when the backend session
// survived it, so the user can resend without starting over.
func (v View) WithRetry(hasSession bool) View {
	if v.Failed && hasSession {
		v.CanSubmit = true
	}
	return v
}
