package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"promochat/internal/constant"
	"promochat/internal/pkg/logger"
	"promochat/pkg/chat/message"
	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionID = "42"

func newTestOrchestrator(t *testing.T, mode transport.Mode) (*Orchestrator, *fakeAdapter) {
	t.Helper()
	adapter := newFakeAdapter(mode)
	opts := DefaultOptions()
	opts.UserID = "7"
	opts.TurnTimeout = 0
	o, err := New(adapter, opts, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { _ = o.Dispose() })
	return o, adapter
}

// flush waits until every event queued so far has been applied.
func flush(t *testing.T, o *Orchestrator) {
	t.Helper()
	require.NoError(t, o.do(context.Background(), func() error { return nil }))
}

func emit(t *testing.T, o *Orchestrator, f *fakeAdapter, ev events.Event) {
	t.Helper()
	f.Emit(ev)
	flush(t, o)
}

func meta() events.Meta {
	m := events.Now()
	m.SessionID = sessionID
	return m
}

func texts(msgs []message.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

// readySession creates a session and confirms it.
func readySession(t *testing.T, o *Orchestrator, f *fakeAdapter) {
	t.Helper()
	require.NoError(t, o.CreateSession(context.Background()))
	create := f.last()
	require.Equal(t, events.ActionCreateSession, create.Kind)

	m := events.Now()
	m.SessionID = sessionID
	m.RequestID = create.RequestID
	emit(t, o, f, events.SessionCreated{Meta: m})
	require.Equal(t, state.Ready, o.Snapshot().Workflow)
}

func TestCreateSession(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePolling)

	require.NoError(t, o.CreateSession(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, state.Creating, snap.Workflow)
	assert.Equal(t, []string{constant.ChatGreeting}, texts(snap.Messages))
	assert.True(t, snap.Status.Busy)
	assert.False(t, snap.Status.CanSubmit)

	create := f.last()
	assert.Equal(t, events.ActionCreateSession, create.Kind)
	assert.Equal(t, "7", create.UserID)
	assert.NotEmpty(t, create.RequestID)

	t.Run("superseded create is ignored", func(t *testing.T) {
		m := events.Now()
		m.SessionID = "stale"
		m.RequestID = "other-request"
		emit(t, o, f, events.SessionCreated{Meta: m})
		assert.Equal(t, state.Creating, o.Snapshot().Workflow)
	})

	t.Run("matching create moves to ready", func(t *testing.T) {
		m := events.Now()
		m.SessionID = sessionID
		m.RequestID = create.RequestID
		emit(t, o, f, events.SessionCreated{Meta: m})

		snap := o.Snapshot()
		assert.Equal(t, state.Ready, snap.Workflow)
		assert.Equal(t, sessionID, snap.SessionID)
		assert.False(t, snap.Status.Busy)
		assert.True(t, snap.Status.CanSubmit)
	})
}

func TestSubmitRejectedOutsideReady(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, o *Orchestrator, f *fakeAdapter)
	}{
		{name: "uninitialized", setup: func(*testing.T, *Orchestrator, *fakeAdapter) {}},
		{name: "creating", setup: func(t *testing.T, o *Orchestrator, _ *fakeAdapter) {
			require.NoError(t, o.CreateSession(context.Background()))
		}},
		{name: "awaiting stage", setup: func(t *testing.T, o *Orchestrator, f *fakeAdapter) {
			readySession(t, o, f)
			require.NoError(t, o.SubmitUserMessage(context.Background(), "บัตรเครดิต"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, f := newTestOrchestrator(t, transport.ModePolling)
			tt.setup(t, o, f)
			before := o.Snapshot()
			sent := len(f.actions())

			err := o.SubmitUserMessage(context.Background(), "hello")

			require.Error(t, err)
			assert.True(t, chaterr.IsValidation(err))
			assert.Len(t, f.actions(), sent)
			assert.Equal(t, before.Workflow, o.Snapshot().Workflow)
			assert.Equal(t, texts(before.Messages), texts(o.Log()))
		})
	}
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePolling)
	readySession(t, o, f)

	err := o.SubmitUserMessage(context.Background(), "   ")

	assert.True(t, chaterr.IsValidation(err))
	assert.Equal(t, state.Ready, o.Snapshot().Workflow)
	assert.Len(t, o.Log(), 1)
}

func TestPollingTurn(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePolling)
	readySession(t, o, f)

	require.NoError(t, o.SubmitUserMessage(context.Background(), "อยากได้โปรโมชั่นร้านอาหาร"))
	submit := f.last()
	assert.Equal(t, events.ActionSubmitMessage, submit.Kind)
	assert.Equal(t, sessionID, submit.SessionID)
	assert.Equal(t, state.AnalyzingContext, o.Snapshot().Workflow)

	// The poll task starts only once the backend accepted the message.
	_, scheduled := f.lastReschedule()
	assert.False(t, scheduled)
	accepted := meta()
	accepted.RequestID = submit.RequestID
	emit(t, o, f, events.Accepted{Meta: accepted, Action: events.ActionSubmitMessage, Stage: state.StageAnalyzingContext})
	r, scheduled := f.lastReschedule()
	require.True(t, scheduled)
	assert.Equal(t, reschedule{sessionID, state.StageAnalyzingContext}, r)

	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageAnalyzingContext, Outcome: events.OutcomeFound})
	snap := o.Snapshot()
	assert.Equal(t, state.FetchingContextDetail, snap.Workflow)
	assert.True(t, snap.Status.AnalysisDone)
	advance := f.last()
	assert.Equal(t, events.ActionAdvanceStage, advance.Kind)
	assert.Equal(t, state.StageFetchingContextDetail, advance.Stage)

	// A result for a later stage arriving early is stale.
	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageSearchingResult, Outcome: events.OutcomeFound,
		Payload: events.Payload{Results: []json.RawMessage{json.RawMessage(`{"id":1}`)}}})
	snap = o.Snapshot()
	assert.Equal(t, state.FetchingContextDetail, snap.Workflow)
	assert.False(t, snap.Status.SearchDone)

	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageFetchingContextDetail, Outcome: events.OutcomeRunning})
	assert.Equal(t, state.FetchingContextDetail, o.Snapshot().Workflow)

	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageFetchingContextDetail, Outcome: events.OutcomeFound})
	assert.Equal(t, state.SearchingResult, o.Snapshot().Workflow)

	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageSearchingResult, Outcome: events.OutcomeFound,
		Payload: events.Payload{Results: []json.RawMessage{json.RawMessage(`{"id":1}`)}}})
	snap = o.Snapshot()
	assert.Equal(t, state.SynthesizingResponse, snap.Workflow)
	assert.True(t, snap.Status.SearchDone)
	assert.True(t, snap.Status.ResultDone)

	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageSynthesizingResponse, Outcome: events.OutcomeFound,
		Payload: events.Payload{Messages: []events.PayloadMessage{
			{Role: message.RoleUser, Text: "อยากได้โปรโมชั่นร้านอาหาร"},
			{Role: message.RoleAssistant, Text: "older answer"},
			{Role: message.RoleAssistant, Text: "ลด 20% ที่ร้าน A"},
		}}})
	snap = o.Snapshot()
	assert.Equal(t, state.Ready, snap.Workflow)
	assert.False(t, snap.Status.Busy)
	assert.Equal(t, []string{constant.ChatGreeting, "อยากได้โปรโมชั่นร้านอาหาร", "ลด 20% ที่ร้าน A"}, texts(snap.Messages))
	assert.GreaterOrEqual(t, f.cancelCount(), 1)

	// Late events after the turn completed do nothing.
	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageSynthesizingResponse, Outcome: events.OutcomeFound,
		Payload: events.Payload{Messages: []events.PayloadMessage{{Role: message.RoleAssistant, Text: "dup"}}}})
	assert.Len(t, o.Log(), 3)
}

func TestFollowUpShortCircuits(t *testing.T) {
	for _, stage := range []state.Stage{state.StageAnalyzingContext, state.StageFetchingContextDetail} {
		t.Run(string(stage), func(t *testing.T) {
			o, f := newTestOrchestrator(t, transport.ModePush)
			readySession(t, o, f)
			require.NoError(t, o.SubmitUserMessage(context.Background(), "โปร"))
			if stage == state.StageFetchingContextDetail {
				emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageAnalyzingContext, Outcome: events.OutcomeFound})
			}

			emit(t, o, f, events.StageResult{Meta: meta(), Outcome: events.OutcomeFollowUp,
				Payload: events.Payload{Text: "ต้องการโปรโมชั่นประเภทไหนคะ"}})

			snap := o.Snapshot()
			assert.Equal(t, state.Ready, snap.Workflow)
			tail := snap.Messages[len(snap.Messages)-1]
			assert.Equal(t, message.RoleAssistant, tail.Role)
			assert.Equal(t, "ต้องการโปรโมชั่นประเภทไหนคะ", tail.Text)
		})
	}
}

func TestPollTimeoutFailsTurn(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePolling)
	readySession(t, o, f)
	require.NoError(t, o.SubmitUserMessage(context.Background(), "โปร"))
	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageAnalyzingContext, Outcome: events.OutcomeFound})
	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageFetchingContextDetail, Outcome: events.OutcomeFound})
	require.Equal(t, state.SearchingResult, o.Snapshot().Workflow)
	cancels := f.cancelCount()

	emit(t, o, f, events.StageTimeout{Meta: meta(), Stage: state.StageSearchingResult, Polls: 60, Elapsed: time.Minute})

	snap := o.Snapshot()
	assert.Equal(t, state.Failed, snap.Workflow)
	assert.Equal(t, constant.ChatApology, snap.Messages[len(snap.Messages)-1].Text)
	assert.Greater(t, f.cancelCount(), cancels)
	assert.True(t, snap.Status.Busy)
	assert.True(t, snap.Status.Failed)
	assert.True(t, snap.Status.CanSubmit)

	t.Run("retry from failed", func(t *testing.T) {
		require.NoError(t, o.SubmitUserMessage(context.Background(), "ลองใหม่"))
		snap := o.Snapshot()
		assert.Equal(t, state.AnalyzingContext, snap.Workflow)
		assert.Equal(t, state.Flags{}, snap.Flags)
	})
}

func TestFailuresWhileInFlight(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
	}{
		{name: "server error", ev: events.ServerError{Meta: meta(), Code: "404", Message: "Chat not found"}},
		{name: "transport failure", ev: events.TransportFailure{Meta: meta(), Err: chaterr.NotOpen("poll")}},
		{name: "stage error", ev: events.StageResult{Meta: meta(), Stage: state.StageAnalyzingContext, Outcome: events.OutcomeError}},
		{name: "connection lost", ev: events.ConnectionChanged{Meta: events.Now(), Status: string(transport.StatusConnecting)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, f := newTestOrchestrator(t, transport.ModePush)
			readySession(t, o, f)
			require.NoError(t, o.SubmitUserMessage(context.Background(), "โปร"))

			emit(t, o, f, tt.ev)

			snap := o.Snapshot()
			assert.Equal(t, state.Failed, snap.Workflow)
			assert.Equal(t, constant.ChatApology, snap.Messages[len(snap.Messages)-1].Text)
		})
	}
}

func TestFailuresOutsideTurnAreIgnored(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePush)
	readySession(t, o, f)

	emit(t, o, f, events.ConnectionChanged{Meta: events.Now(), Status: string(transport.StatusConnecting)})
	emit(t, o, f, events.ServerError{Meta: meta(), Code: "500", Message: "boom"})

	assert.Equal(t, state.Ready, o.Snapshot().Workflow)
	assert.Len(t, o.Log(), 1)
}

func TestNewSessionDiscardsInFlightTurn(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePolling)
	readySession(t, o, f)
	require.NoError(t, o.SubmitUserMessage(context.Background(), "โปร"))
	cancels := f.cancelCount()

	require.NoError(t, o.CreateSession(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, state.Creating, snap.Workflow)
	assert.Equal(t, []string{constant.ChatGreeting}, texts(snap.Messages))
	assert.Greater(t, f.cancelCount(), cancels)

	// Results for the abandoned turn are ignored.
	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageAnalyzingContext, Outcome: events.OutcomeFound})
	emit(t, o, f, events.FinalMessage{Meta: meta(), Role: message.RoleAssistant, Text: "late"})
	assert.Equal(t, state.Creating, o.Snapshot().Workflow)
	assert.Len(t, o.Log(), 1)

	create := f.last()
	m := events.Now()
	m.SessionID = "43"
	m.RequestID = create.RequestID
	emit(t, o, f, events.SessionCreated{Meta: m})

	emit(t, o, f, events.FinalMessage{Meta: meta(), Role: message.RoleSystem, Text: "old session"})
	snap = o.Snapshot()
	assert.Equal(t, "43", snap.SessionID)
	assert.Len(t, snap.Messages, 1)
}

func TestOldSessionEventsWhileCreating(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
	}{
		{name: "server error", ev: events.ServerError{Meta: meta(), Code: "500", Message: "boom"}},
		{name: "transport failure", ev: events.TransportFailure{Meta: meta(), Err: chaterr.NotOpen("send")}},
		{name: "system message", ev: events.FinalMessage{Meta: meta(), Role: message.RoleSystem, Text: "old session"}},
		{name: "stage timeout", ev: events.StageTimeout{Meta: meta(), Stage: state.StageAnalyzingContext, Polls: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, f := newTestOrchestrator(t, transport.ModePush)
			readySession(t, o, f)
			require.NoError(t, o.SubmitUserMessage(context.Background(), "hello"))
			require.NoError(t, o.CreateSession(context.Background()))
			create := f.last()

			emit(t, o, f, tt.ev)
			assert.Equal(t, state.Creating, o.Snapshot().Workflow)

			m := events.Now()
			m.SessionID = "43"
			m.RequestID = create.RequestID
			emit(t, o, f, events.SessionCreated{Meta: m})

			snap := o.Snapshot()
			assert.Equal(t, state.Ready, snap.Workflow)
			assert.Equal(t, "43", snap.SessionID)
			assert.Equal(t, []string{constant.ChatGreeting}, texts(snap.Messages))

			// The retired session stays retired during the next turn.
			require.NoError(t, o.SubmitUserMessage(context.Background(), "again"))
			emit(t, o, f, tt.ev)
			assert.Equal(t, state.AnalyzingContext, o.Snapshot().Workflow)
		})
	}
}

func TestDeleteOnReset(t *testing.T) {
	adapter := newFakeAdapter(transport.ModePolling)
	opts := DefaultOptions()
	opts.DeleteOnReset = true
	o, err := New(adapter, opts, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	defer o.Dispose()

	readySession(t, o, adapter)
	require.NoError(t, o.CreateSession(context.Background()))

	acts := adapter.actions()
	require.Len(t, acts, 3)
	assert.Equal(t, events.ActionDeleteSession, acts[1].Kind)
	assert.Equal(t, sessionID, acts[1].SessionID)
	assert.Equal(t, events.ActionCreateSession, acts[2].Kind)
}

func TestPushStreaming(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePush)
	readySession(t, o, f)
	require.NoError(t, o.SubmitUserMessage(context.Background(), "โปร"))
	emit(t, o, f, events.StageResult{Meta: meta(), Stage: state.StageAnalyzingContext, Outcome: events.OutcomeFound})

	emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleSystem, Text: "กำลัง"})
	emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleSystem, Text: "ค้นหา\x1b[0m"})
	tail := o.Log()[len(o.Log())-1]
	assert.True(t, tail.Streaming)
	assert.Equal(t, "กำลังค้นหา0m", tail.Text)

	emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleSystem, IsFinal: true})
	tail = o.Log()[len(o.Log())-1]
	assert.False(t, tail.Streaming)

	t.Run("sentinel stream is dropped", func(t *testing.T) {
		n := len(o.Log())
		emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleSystem, Text: "None"})
		emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleSystem, IsFinal: true})
		assert.Len(t, o.Log(), n)
	})

	t.Run("final assistant message ends the turn", func(t *testing.T) {
		emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleSystem, Text: "ระหว่าง"})
		emit(t, o, f, events.FinalMessage{Meta: meta(), Role: message.RoleAssistant, Text: "คำตอบ"})

		msgs := o.Log()
		assert.Equal(t, state.Ready, o.Snapshot().Workflow)
		assert.Equal(t, "ระหว่าง", msgs[len(msgs)-2].Text)
		assert.False(t, msgs[len(msgs)-2].Streaming)
		assert.Equal(t, "คำตอบ", msgs[len(msgs)-1].Text)
	})

	t.Run("deltas outside a turn are stale", func(t *testing.T) {
		n := len(o.Log())
		emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleAssistant, Text: "late"})
		assert.Len(t, o.Log(), n)
	})
}

func TestSingleStreamingTail(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePush)
	readySession(t, o, f)
	require.NoError(t, o.SubmitUserMessage(context.Background(), "โปร"))

	emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleSystem, Text: "a"})
	emit(t, o, f, events.Delta{Meta: meta(), Role: message.RoleAssistant, Text: "b"})
	emit(t, o, f, events.FinalMessage{Meta: meta(), Role: message.RoleSystem, Text: "info"})

	streaming := 0
	msgs := o.Log()
	for i, m := range msgs {
		if m.Streaming {
			streaming++
			assert.Equal(t, len(msgs)-1, i)
		}
	}
	assert.LessOrEqual(t, streaming, 1)
	assert.Equal(t, state.AnalyzingContext, o.Snapshot().Workflow)
}

func TestActivityFeedIsBounded(t *testing.T) {
	adapter := newFakeAdapter(transport.ModePush)
	opts := DefaultOptions()
	opts.ActivityLimit = 2
	o, err := New(adapter, opts, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	defer o.Dispose()

	for _, title := range []string{"new_chat", "context_found", "promotions_found"} {
		emit(t, o, adapter, events.Activity{Meta: events.Now(), Title: title})
	}

	activity := o.Snapshot().Activity
	require.Len(t, activity, 2)
	assert.Equal(t, "context_found", activity[0].Title)
	assert.Equal(t, "promotions_found", activity[1].Title)
}

func TestPushTurnTimeout(t *testing.T) {
	adapter := newFakeAdapter(transport.ModePush)
	opts := DefaultOptions()
	opts.TurnTimeout = 20 * time.Millisecond
	o, err := New(adapter, opts, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	defer o.Dispose()

	require.NoError(t, o.CreateSession(context.Background()))

	assert.Eventually(t, func() bool {
		return o.Snapshot().Workflow == state.Failed
	}, time.Second, 5*time.Millisecond)
	assert.False(t, o.Snapshot().Status.CanSubmit)
}

func TestSendFailureFailsTurn(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePolling)
	readySession(t, o, f)
	f.mu.Lock()
	f.sendErr = chaterr.NotOpen("submit_message")
	f.mu.Unlock()

	err := o.SubmitUserMessage(context.Background(), "โปร")

	assert.True(t, chaterr.IsTransport(err))
	snap := o.Snapshot()
	assert.Equal(t, state.Failed, snap.Workflow)
	assert.Equal(t, constant.ChatApology, snap.Messages[len(snap.Messages)-1].Text)
}

func TestUpdatesFeed(t *testing.T) {
	o, f := newTestOrchestrator(t, transport.ModePolling)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := o.Updates(ctx)
	require.NoError(t, err)

	readySession(t, o, f)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Workflow == state.Ready {
				assert.Equal(t, sessionID, snap.SessionID)
				return
			}
		case <-deadline:
			t.Fatal("no ready snapshot received")
		}
	}
}

func TestOperationsAfterDispose(t *testing.T) {
	o, _ := newTestOrchestrator(t, transport.ModePolling)
	require.NoError(t, o.Dispose())

	assert.ErrorIs(t, o.CreateSession(context.Background()), ErrDisposed)
	assert.NoError(t, o.Dispose())
}
