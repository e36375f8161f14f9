package polling

import (
	"fmt"

	"promochat/internal/constant"
	"promochat/pkg/chat/state"
)

// stageEndpoint describes how the REST backend exposes one pipeline stage.
// An empty trigger means the stage starts on its own.
type stageEndpoint struct {
	trigger string
	status  string
}

var stageEndpoints = map[state.Stage]stageEndpoint{
	state.StageAnalyzingContext:      {status: constant.PollGetContextPath},
	state.StageFetchingContextDetail: {trigger: constant.PollCreateDetailsPath, status: constant.PollGetDetailsPath},
	state.StageSearchingResult:       {status: constant.PollGetPromotionsPath},
	state.StageSynthesizingResponse:  {trigger: constant.PollCreateResponsePath, status: constant.PollGetResponsePath},
}

func (a *Adapter) url(pathFormat string, args ...any) string {
	return a.cfg.BaseURL + fmt.Sprintf(pathFormat, args...)
}

func endpointFor(stage state.Stage) (stageEndpoint, error) {
	ep, ok := stageEndpoints[stage]
	if !ok {
		return stageEndpoint{}, fmt.Errorf("no endpoint for stage %q", stage)
	}
	return ep, nil
}
