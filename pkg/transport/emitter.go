package transport

import (
	"sync"
	"sync/atomic"

	"promochat/pkg/events"

	"github.com/google/uuid"
)

// Emitter fans inbound events out to the registered handlers. Adapters embed
// it; after Stop no further event is delivered.
type Emitter struct {
	mu       sync.RWMutex
	handlers []events.Handler
	stopped  atomic.Bool
}

// OnEvent registers a handler.
func (e *Emitter) OnEvent(h events.Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

// Emit delivers ev to every handler unless the emitter is stopped.
func (e *Emitter) Emit(ev events.Event) {
	if e.stopped.Load() {
		return
	}
	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Stop silences the emitter permanently.
func (e *Emitter) Stop() {
	e.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (e *Emitter) Stopped() bool {
	return e.stopped.Load()
}

// NewMeta stamps a fresh event id and the current time.
func NewMeta(sessionID, requestID string) events.Meta {
	m := events.Now()
	m.EventID = uuid.NewString()
	m.SessionID = sessionID
	m.RequestID = requestID
	return m
}
