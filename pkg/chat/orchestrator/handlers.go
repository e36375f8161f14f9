package orchestrator

import (
	"errors"
	"fmt"

	"promochat/pkg/chat/message"
	"promochat/pkg/chat/state"
	"promochat/pkg/chat/stream"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"

	"github.com/google/uuid"
)

// apply reconciles one inbound event. Queue goroutine only.
func (o *Orchestrator) apply(ev events.Event) {
	if reason, stale := o.stale(ev); stale {
		o.discard(ev, reason)
		return
	}

	var changed bool
	switch e := ev.(type) {
	case events.SessionCreated:
		changed = o.onSessionCreated(e)
	case events.Accepted:
		o.onAccepted(e)
	case events.StageResult:
		changed = o.onStageResult(e)
	case events.Delta:
		changed = o.onDelta(e)
	case events.FinalMessage:
		changed = o.onFinalMessage(e)
	case events.Activity:
		o.addActivity(Activity{Title: e.Title, Body: e.Body, Elapsed: e.Elapsed, At: e.ReceivedAt})
		changed = o.opts.ActivityLimit > 0
	case events.ServerError:
		changed = o.failIfInFlight(ev, fmt.Errorf("server error %s: %s", e.Code, e.Message))
	case events.TransportFailure:
		changed = o.failIfInFlight(ev, e.Err)
	case events.StageTimeout:
		changed = o.failIfInFlight(ev, &chaterr.StageTimeout{Stage: string(e.Stage), Polls: e.Polls, Elapsed: e.Elapsed})
	case events.ConnectionChanged:
		changed = o.onConnectionChanged(e)
	}
	if changed {
		o.publish()
	}
}

// stale reports events that belong to another session or to a request that
// is no longer outstanding.
func (o *Orchestrator) stale(ev events.Event) (string, bool) {
	meta := ev.Header()
	if _, created := ev.(events.SessionCreated); !created && meta.SessionID != "" {
		if _, ok := o.retired[meta.SessionID]; ok {
			return "retired session", true
		}
		// Until session_created arrives, every tagged event belongs to an
		// earlier session.
		if meta.SessionID != o.sessionID {
			return "session mismatch", true
		}
	}
	if meta.RequestID != "" {
		if _, ok := o.requests[meta.RequestID]; !ok {
			return "unknown request", true
		}
	}
	return "", false
}

func (o *Orchestrator) discard(ev events.Event, reason string) {
	o.logger.Debug(module, "Discarding stale event", map[string]interface{}{
		"event":      ev.EventType(),
		"reason":     reason,
		"state":      o.machine.Current(),
		"session_id": ev.Header().SessionID,
	})
}

func (o *Orchestrator) onSessionCreated(e events.SessionCreated) bool {
	if o.machine.Current() != state.Creating {
		o.discard(e, "not creating")
		return false
	}
	if e.RequestID != "" && e.RequestID != o.createReq {
		o.discard(e, "superseded create")
		return false
	}
	o.sessionID = e.SessionID
	o.createReq = ""
	o.toReady("created")
	o.logger.Info(module, "Session created", map[string]interface{}{"session_id": o.sessionID})
	return true
}

// onAccepted starts the poll task once the backend has taken the request,
// so the first status request cannot race the run it asks about.
func (o *Orchestrator) onAccepted(e events.Accepted) {
	if e.Action != events.ActionSubmitMessage && e.Action != events.ActionAdvanceStage {
		return
	}
	stage, ok := o.machine.Current().Stage()
	if !ok || stage != e.Stage {
		o.discard(e, "stage moved on")
		return
	}
	o.adapter.RescheduleFor(o.sessionID, stage)
}

func (o *Orchestrator) onStageResult(e events.StageResult) bool {
	current, awaiting := o.machine.Current().Stage()
	if !awaiting {
		o.discard(e, "not awaiting")
		return false
	}
	if e.Stage != "" && e.Stage != current {
		o.discard(e, "expected "+string(current))
		return false
	}

	switch e.Outcome {
	case events.OutcomeRunning:
		return false

	case events.OutcomeError:
		o.failTurn(fmt.Errorf("stage %s failed: %s", current, e.Payload.Text))
		return true

	case events.OutcomeFollowUp:
		o.acc.Finalize()
		if e.Payload.Text != "" {
			o.appendMessage(message.RoleAssistant, e.Payload.Text)
		}
		o.toReady("follow_up")
		return true
	}

	switch current {
	case state.StageAnalyzingContext:
		o.mark(state.FlagAnalysis)
	case state.StageSearchingResult:
		o.mark(state.FlagSearch)
		if len(e.Payload.Results) > 0 {
			o.mark(state.FlagResult)
		}
	case state.StageSynthesizingResponse:
		o.acc.Finalize()
		if text, ok := e.Payload.LastAssistant(); ok {
			o.appendMessage(message.RoleAssistant, text)
		}
		o.toReady("response")
		return true
	}

	next, _ := current.Next()
	o.enterStage(next)
	return true
}

func (o *Orchestrator) onDelta(e events.Delta) bool {
	if !o.machine.Current().IsAwaiting() {
		o.discard(e, "not awaiting")
		return false
	}
	outcome, err := o.acc.Feed(stream.Fragment{Role: e.Role, Text: e.Text, IsFinal: e.IsFinal})
	if err != nil {
		o.logger.Warn(module, "Stream fragment", map[string]interface{}{"error": err.Error(), "outcome": outcome})
	}
	return true
}

func (o *Orchestrator) onFinalMessage(e events.FinalMessage) bool {
	w := o.machine.Current()
	if e.Role == message.RoleUser {
		return false
	}
	if !w.IsAwaiting() {
		o.discard(e, "not awaiting")
		return false
	}
	o.acc.Finalize()
	o.appendMessage(e.Role, e.Text)
	if e.Role == message.RoleAssistant {
		o.toReady("final_message")
	}
	return true
}

func (o *Orchestrator) onConnectionChanged(e events.ConnectionChanged) bool {
	o.logger.Info(module, "Transport status", map[string]interface{}{"status": e.Status, "error": errString(e.Err)})
	if e.Status == string(transport.StatusOpen) {
		return false
	}
	cause := e.Err
	if cause == nil {
		cause = chaterr.ErrNotOpen
	}
	return o.failIfInFlight(e, &chaterr.TransportError{Op: "connection " + e.Status, Err: cause})
}

func (o *Orchestrator) failIfInFlight(ev events.Event, err error) bool {
	if !o.machine.Current().InFlight() {
		o.logger.Warn(module, "Failure outside a turn", map[string]interface{}{"event": ev.EventType(), "error": errString(err)})
		return false
	}
	o.failTurn(err)
	return true
}

// enterStage moves to the next awaiting stage. Polling backends need the
// stage triggered explicitly.
func (o *Orchestrator) enterStage(next state.Stage) {
	if err := o.machine.Move(next.Workflow()); err != nil {
		o.logger.Error(module, "Illegal stage transition", map[string]interface{}{"error": err.Error()})
		return
	}
	o.spanStage(next)
	if o.adapter.Mode() != transport.ModePolling {
		return
	}
	o.adapter.CancelSchedule()
	err := o.send(events.Action{
		Kind:      events.ActionAdvanceStage,
		RequestID: uuid.NewString(),
		SessionID: o.sessionID,
		UserID:    o.opts.UserID,
		Stage:     next,
	})
	if err != nil {
		o.failTurn(err)
	}
}

func (o *Orchestrator) toReady(outcome string) {
	o.acc.Finalize()
	o.adapter.CancelSchedule()
	o.stopWatchdog()
	if err := o.machine.Move(state.Ready); err != nil {
		o.logger.Error(module, "Illegal transition", map[string]interface{}{"error": err.Error()})
		return
	}
	o.endSpan(nil, outcome)
}

// failTurn ends the request in flight with the apology message.
func (o *Orchestrator) failTurn(cause error) {
	o.acc.Finalize()
	o.adapter.CancelSchedule()
	o.stopWatchdog()
	if err := o.machine.Move(state.Failed); err != nil {
		o.logger.Error(module, "Illegal transition", map[string]interface{}{"error": err.Error()})
		return
	}
	o.appendMessage(message.RoleAssistant, o.opts.Apology)
	o.endSpan(cause, "failed")

	details := map[string]interface{}{"session_id": o.sessionID, "error": errString(cause)}
	var timeout *chaterr.StageTimeout
	if errors.As(cause, &timeout) {
		details["stage"] = timeout.Stage
		details["polls"] = timeout.Polls
	}
	o.logger.Warn(module, "Turn failed", details)
}

func (o *Orchestrator) appendMessage(role message.Role, text string) {
	if _, err := o.log.Append(role, text); err != nil {
		o.logger.Error(module, "Append failed", map[string]interface{}{"role": role, "error": err.Error()})
	}
}

func (o *Orchestrator) mark(f state.Flag) {
	if err := o.machine.Mark(f); err != nil {
		o.logger.Warn(module, "Substage out of order", map[string]interface{}{"flag": f.String(), "error": err.Error()})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
