package transport

import (
	"context"
	"testing"
	"time"

	"promochat/pkg/chat/state"
	"promochat/pkg/events"

	"github.com/stretchr/testify/assert"
)

type stubAdapter struct {
	Emitter
	closed bool
}

func (s *stubAdapter) Connect(context.Context) error             { return nil }
func (s *stubAdapter) Send(context.Context, events.Action) error { return nil }
func (s *stubAdapter) Status() Status                            { return StatusOpen }
func (s *stubAdapter) Mode() Mode                                { return ModePush }
func (s *stubAdapter) RescheduleFor(string, state.Stage)         {}
func (s *stubAdapter) CancelSchedule()                           {}
func (s *stubAdapter) Close() error                              { s.closed = true; return nil }

func TestDeduplicate(t *testing.T) {
	inner := &stubAdapter{}
	d := Deduplicate(inner, time.Minute)

	var first, second []string
	d.OnEvent(func(ev events.Event) { first = append(first, ev.Header().EventID) })
	d.OnEvent(func(ev events.Event) { second = append(second, ev.Header().EventID) })

	withID := func(id string) events.Event {
		m := events.Now()
		m.EventID = id
		return events.Activity{Meta: m, Title: id}
	}

	inner.Emit(withID("a"))
	inner.Emit(withID("b"))
	inner.Emit(withID("a"))
	inner.Emit(withID(""))
	inner.Emit(withID(""))

	assert.Equal(t, []string{"a", "b", "", ""}, first)
	assert.Equal(t, first, second)

	assert.NoError(t, d.Close())
	assert.True(t, inner.closed)

	inner.Emit(withID("c"))
	assert.Len(t, first, 4)
}
