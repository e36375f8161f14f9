package state

import (
	"fmt"
)

// Workflow is the canonical position of a chat session in its lifecycle.
type Workflow string

const (
	Uninitialized         Workflow = "uninitialized"
	Creating              Workflow = "creating"
	AnalyzingContext      Workflow = "analyzing_context"
	FetchingContextDetail Workflow = "fetching_context_detail"
	SearchingResult       Workflow = "searching_result"
	SynthesizingResponse  Workflow = "synthesizing_response"
	Ready                 Workflow = "ready"
	Failed                Workflow = "failed"
)

// Stage is one backend pipeline phase within a turn. Every stage is also an
// awaiting Workflow value, so the two convert freely.
type Stage string

const (
	StageAnalyzingContext      Stage = Stage(AnalyzingContext)
	StageFetchingContextDetail Stage = Stage(FetchingContextDetail)
	StageSearchingResult       Stage = Stage(SearchingResult)
	StageSynthesizingResponse  Stage = Stage(SynthesizingResponse)
)

// Pipeline lists the stages in the order the backend completes them.
var Pipeline = []Stage{
	StageAnalyzingContext,
	StageFetchingContextDetail,
	StageSearchingResult,
	StageSynthesizingResponse,
}

// ParseStage maps a wire stage tag to a Stage.
func ParseStage(raw string) (Stage, error) {
	for _, s := range Pipeline {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

// Workflow returns the awaiting state that corresponds to the stage.
func (s Stage) Workflow() Workflow {
	return Workflow(s)
}

// Next returns the stage that follows s. The last stage reports false.
func (s Stage) Next() (Stage, bool) {
	for i, p := range Pipeline {
		if p == s && i+1 < len(Pipeline) {
			return Pipeline[i+1], true
		}
	}
	return "", false
}

// IsAwaiting reports whether the state waits on a backend pipeline stage.
func (w Workflow) IsAwaiting() bool {
	_, ok := w.Stage()
	return ok
}

// InFlight reports whether a request for the session is outstanding.
func (w Workflow) InFlight() bool {
	return w == Creating || w.IsAwaiting()
}

// Stage returns the pipeline stage the workflow is waiting on.
func (w Workflow) Stage() (Stage, bool) {
	for _, s := range Pipeline {
		if Workflow(s) == w {
			return s, true
		}
	}
	return "", false
}

func (w Workflow) String() string {
	return string(w)
}
