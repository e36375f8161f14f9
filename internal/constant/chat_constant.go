package constant

const (
	// ChatGreeting opens every new conversation log.
	ChatGreeting = "สวัสดีครับ มีอะไรให้ช่วยครับ"

	// ChatApology is appended when a turn ends in the failed state.
	ChatApology = "ขอโทษค่ะ เราขออภัยที่ไม่สามารถให้บริการโปรโมชั่นที่คุณต้องการในขณะนี้ได้ค่ะ"

	ChatDefaultScript = "Thai"
)

// ChatDiscardSentinels are streamed texts that only signal end of output.
var ChatDiscardSentinels = []string{"None", "null"}

// Polling REST endpoints. %s is the backend chat id.
const (
	PollCreateChatPath     = "/api/chat"
	PollChatPath           = "/api/chat/%s"
	PollSubmitMessagePath  = "/api/chat/%s/message"
	PollGetContextPath     = "/api/chat/%s/get_context"
	PollCreateDetailsPath  = "/api/chat/%s/create_context_details"
	PollGetDetailsPath     = "/api/chat/%s/get_context_details"
	PollGetPromotionsPath  = "/api/chat/%s/get_promotions"
	PollCreateResponsePath = "/api/chat/%s/create_promotions_text"
	PollGetResponsePath    = "/api/chat/%s/get_response"
)

// Polling status values and actions reported by the REST backend.
const (
	PollStatusReady   = "ready"
	PollStatusRunning = "running"
	PollStatusError   = "error"

	PollActionNoRun               = "no_run"
	PollActionRunInProgress       = "run_in_progress"
	PollActionRunNotCompleted     = "run_not_completed"
	PollActionNoResponse          = "no_response"
	PollActionUnexpectedResponse  = "unexpected_response"
	PollActionInvalidResponse     = "invalid_response"
	PollActionFollowUpQuestion    = "follow_up_question"
	PollActionContextFound        = "context_found"
	PollActionContextDetailsFound = "context_details_found"
	PollActionPromotionsFound     = "promotions found"
	PollActionPromotionsNotFound  = "promotions not found"
	PollActionWaitForPromotion    = "wait_for_promotion_text"
	PollActionResponseAdded       = "response_added"
)

// Push envelope names.
const (
	PushActionNewChat     = "create_new_chat"
	PushActionUserMessage = "new_user_message"
	PushActionAdvance     = "advance_stage"
	PushActionStatus      = "get_stage_status"
	PushActionDeleteChat  = "delete_chat"

	PushTypeNewChatInfo = "new_chat_info"
	PushTypeChat        = "chat"
	PushTypeChatDelta   = "chat_delta"
	PushTypeActivity    = "activity"
	PushTypeError       = "error"
	PushTypeStageResult = "stage_result"

	PushMessageTypeUser      = "user"
	PushMessageTypeAssistant = "assistant"
	PushMessageTypeSystem    = "system"
	PushMessageTypeFollowUp  = "follow_up_question"
)

// Activity headers that carry an explicit stage tag.
const (
	ActivityContextFound        = "context_found"
	ActivityContextDetailsFound = "context_details_found"
	ActivityPromotionsFound     = "promotions_found"
	ActivityPromotionsNotFound  = "promotions_not_found"
	ActivityFollowUpQuestion    = "follow_up_question"
)

// Broker subjects. The prefix is configurable.
const (
	BrokerActionsSubject = "%s.actions"
	BrokerEventsSubject  = "%s.events.%s"
)
