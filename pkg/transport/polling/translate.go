package polling

import (
	"encoding/json"
	"fmt"

	"promochat/internal/constant"
	"promochat/internal/dto"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport/codec"
)

// translate maps a status endpoint body to a stage outcome and payload.
func translate(resp dto.StageStatusResponse) (events.Outcome, events.Payload, error) {
	switch resp.Action {
	case constant.PollActionRunInProgress, constant.PollActionRunNotCompleted, constant.PollActionWaitForPromotion:
		return events.OutcomeRunning, events.Payload{}, nil

	case constant.PollActionContextFound:
		return events.OutcomeFound, events.Payload{Context: resp.Context}, nil

	case constant.PollActionContextDetailsFound:
		ctx := resp.ContextDetails
		if len(ctx) == 0 {
			ctx = resp.Context
		}
		return events.OutcomeFound, events.Payload{Context: ctx}, nil

	case constant.PollActionPromotionsFound:
		var results []json.RawMessage
		if err := json.Unmarshal(resp.Promotions, &results); err != nil {
			return events.OutcomeError, events.Payload{}, &chaterr.ProtocolError{Reason: "promotions", Err: err}
		}
		return events.OutcomeFound, events.Payload{Results: results}, nil

	case constant.PollActionPromotionsNotFound:
		return events.OutcomeFound, events.Payload{}, nil

	case constant.PollActionResponseAdded:
		var msgs []dto.ChatMessageDTO
		if err := json.Unmarshal(resp.Message, &msgs); err != nil {
			return events.OutcomeError, events.Payload{}, &chaterr.ProtocolError{Reason: "response messages", Err: err}
		}
		converted, err := codec.PayloadMessages(msgs)
		if err != nil {
			return events.OutcomeError, events.Payload{}, err
		}
		return events.OutcomeFound, events.Payload{Messages: converted, Context: resp.Context}, nil

	case constant.PollActionFollowUpQuestion:
		return events.OutcomeFollowUp, events.Payload{Text: messageText(resp.Message), Context: resp.Context}, nil

	case constant.PollActionNoRun, constant.PollActionNoResponse,
		constant.PollActionUnexpectedResponse, constant.PollActionInvalidResponse:
		return events.OutcomeError, events.Payload{Text: resp.Action}, nil
	}

	switch resp.Status {
	case constant.PollStatusRunning:
		return events.OutcomeRunning, events.Payload{}, nil
	case constant.PollStatusError:
		return events.OutcomeError, events.Payload{Text: messageText(resp.Message)}, nil
	}
	return events.OutcomeError, events.Payload{}, &chaterr.ProtocolError{Reason: fmt.Sprintf("unknown action %q", resp.Action)}
}

// messageText returns the message field when it is a plain string.
func messageText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}
