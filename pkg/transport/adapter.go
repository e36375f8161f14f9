// Package transport hides the difference between request/poll backends and
// push backends behind one Adapter.
package transport

import (
	"context"

	"promochat/pkg/chat/state"
	"promochat/pkg/events"
)

// Status is the connection state of an adapter handle.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
)

// Mode tells the orchestrator who drives the pipeline between stages.
type Mode string

const (
	// ModePolling backends advance only when the client triggers and polls
	// each stage.
	ModePolling Mode = "polling"
	// ModePush backends run the whole pipeline and push events.
	ModePush Mode = "push"
)

// Adapter is a bidirectional channel to the chat backend.
type Adapter interface {
	// Connect opens the channel. Push adapters keep reconnecting in the
	// background after the first successful dial.
	Connect(ctx context.Context) error

	// Send delivers one action. It never blocks on the network and fails with
	// a *chaterr.TransportError when the channel is closed.
	Send(ctx context.Context, a events.Action) error

	// OnEvent registers the handler for inbound events. Handlers must not
	// block; the orchestrator only enqueues.
	OnEvent(h events.Handler)

	Status() Status
	Mode() Mode

	// RescheduleFor restarts the single stage poll task. Push adapters ignore it.
	RescheduleFor(sessionID string, stage state.Stage)

	// CancelSchedule stops the active poll task, if any.
	CancelSchedule()

	// Close releases timers, connections and subscriptions. No event is
	// delivered after Close returns.
	Close() error
}
