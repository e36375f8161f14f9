package orchestrator

import (
	"context"
	"sync"

	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"
)

type reschedule struct {
	sessionID string
	stage     state.Stage
}

// fakeAdapter records outbound actions and lets tests inject events.
type fakeAdapter struct {
	transport.Emitter

	mode    transport.Mode
	sendErr error

	mu          sync.Mutex
	status      transport.Status
	sent        []events.Action
	reschedules []reschedule
	cancels     int
}

func newFakeAdapter(mode transport.Mode) *fakeAdapter {
	return &fakeAdapter{mode: mode, status: transport.StatusClosed}
}

func (f *fakeAdapter) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = transport.StatusOpen
	return nil
}

func (f *fakeAdapter) Send(_ context.Context, a events.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.status != transport.StatusOpen {
		return chaterr.NotOpen(string(a.Kind))
	}
	f.sent = append(f.sent, a)
	return nil
}

func (f *fakeAdapter) Status() transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeAdapter) Mode() transport.Mode { return f.mode }

func (f *fakeAdapter) RescheduleFor(sessionID string, stage state.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reschedules = append(f.reschedules, reschedule{sessionID, stage})
}

func (f *fakeAdapter) CancelSchedule() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeAdapter) Close() error {
	f.Stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = transport.StatusClosed
	return nil
}

func (f *fakeAdapter) actions() []events.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Action(nil), f.sent...)
}

func (f *fakeAdapter) last() events.Action {
	acts := f.actions()
	if len(acts) == 0 {
		return events.Action{}
	}
	return acts[len(acts)-1]
}

func (f *fakeAdapter) lastReschedule() (reschedule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reschedules) == 0 {
		return reschedule{}, false
	}
	return f.reschedules[len(f.reschedules)-1], true
}

func (f *fakeAdapter) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}
