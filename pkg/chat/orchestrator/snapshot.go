package orchestrator

import (
	"time"

	"promochat/pkg/chat/message"
	"promochat/pkg/chat/state"
	"promochat/pkg/chat/status"
)

// Activity is one entry of the backend's AI activity report.
type Activity struct {
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Elapsed string    `json:"elapsed,omitempty"`
	At      time.Time `json:"at"`
}

// Snapshot is an immutable, read-only view of the session for the UI.
type Snapshot struct {
	Version   uint64            `json:"version"`
	SessionID string            `json:"session_id,omitempty"`
	Workflow  state.Workflow    `json:"workflow"`
	Flags     state.Flags       `json:"flags"`
	Status    status.View       `json:"status"`
	Messages  []message.Message `json:"messages"`
	Activity  []Activity        `json:"activity,omitempty"`
}

// snapshot captures the current state. Queue goroutine only.
func (o *Orchestrator) snapshot() Snapshot {
	o.version++
	activity := make([]Activity, len(o.activity))
	copy(activity, o.activity)

	w := o.machine.Current()
	flags := o.machine.Flags()
	return Snapshot{
		Version:   o.version,
		SessionID: o.sessionID,
		Workflow:  w,
		Flags:     flags,
		Status:    status.Project(w, flags).WithRetry(o.sessionID != ""),
		Messages:  o.log.Snapshot(),
		Activity:  activity,
	}
}

// publish stores the new snapshot for readers and notifies subscribers.
func (o *Orchestrator) publish() {
	snap := o.snapshot()
	o.snapMu.Lock()
	o.current = snap
	o.snapMu.Unlock()
	o.updates.publish(snap)
}

func (o *Orchestrator) addActivity(a Activity) {
	if o.opts.ActivityLimit <= 0 {
		return
	}
	o.activity = append(o.activity, a)
	if over := len(o.activity) - o.opts.ActivityLimit; over > 0 {
		o.activity = append([]Activity(nil), o.activity[over:]...)
	}
}
