package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"promochat/internal/dto"
	"promochat/internal/pkg/logger"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"
	"promochat/pkg/transport/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu  sync.Mutex
	evs []events.Event
}

func (c *collector) handle(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
}

func (c *collector) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.evs...)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "promochat.actions", ActionsSubject("promochat"))
	assert.Equal(t, "promochat.events.c1", EventsSubject("promochat", "c1"))
}

func TestChannelBrokerRoundTrip(t *testing.T) {
	b := NewChannelBroker(logger.NewNopLogger())
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A minimal backend: every create action is answered on the client's subject.
	actions, err := b.Subscribe(ctx, ActionsSubject("test"))
	require.NoError(t, err)
	go func() {
		for frame := range actions {
			act, clientID, err := codec.DecodeAction(frame)
			if err != nil || act.Kind != events.ActionCreateSession {
				continue
			}
			out, _ := codec.EncodeEvent("new_chat_info", "e1", act.RequestID, "", dto.NewChatInfoData{ChatID: "7"})
			_ = b.Publish(ctx, EventsSubject("test", clientID), out)
		}
	}()

	a := NewAdapter(Config{Prefix: "test", ClientID: "c1"}, b, logger.NewNopLogger())
	c := &collector{}
	a.OnEvent(c.handle)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Close()
	assert.Equal(t, transport.StatusOpen, a.Status())

	require.NoError(t, a.Send(context.Background(), events.Action{Kind: events.ActionCreateSession, RequestID: "r1"}))

	require.Eventually(t, func() bool {
		for _, ev := range c.all() {
			if created, ok := ev.(events.SessionCreated); ok {
				return created.SessionID == "7" && created.RequestID == "r1"
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

type failingBroker struct {
	onStatus func(bool, error)
}

func (f *failingBroker) Publish(context.Context, string, []byte) error {
	return errors.New("broker unavailable")
}

func (f *failingBroker) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (f *failingBroker) OnStatus(fn func(bool, error)) { f.onStatus = fn }
func (f *failingBroker) Close() error                  { return nil }

func TestPublishFailureBecomesEvent(t *testing.T) {
	fb := &failingBroker{}
	a := NewAdapter(Config{Prefix: "test", ClientID: "c1"}, fb, logger.NewNopLogger())
	c := &collector{}
	a.OnEvent(c.handle)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Close()

	require.NoError(t, a.Send(context.Background(), events.Action{Kind: events.ActionSubmitMessage, RequestID: "s1", SessionID: "7", Text: "x"}))
	require.Eventually(t, func() bool {
		for _, ev := range c.all() {
			if f, ok := ev.(events.TransportFailure); ok {
				return f.RequestID == "s1" && chaterr.IsTransport(f.Err)
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestBrokerStatusChanges(t *testing.T) {
	fb := &failingBroker{}
	a := NewAdapter(Config{Prefix: "test", ClientID: "c1"}, fb, logger.NewNopLogger())
	c := &collector{}
	a.OnEvent(c.handle)

	// Ignored while closed.
	fb.onStatus(false, errors.New("down"))
	assert.Empty(t, c.all())

	require.NoError(t, a.Connect(context.Background()))
	fb.onStatus(false, errors.New("down"))
	assert.Equal(t, transport.StatusConnecting, a.Status())
	fb.onStatus(true, nil)
	assert.Equal(t, transport.StatusOpen, a.Status())
	require.NoError(t, a.Close())

	var statuses []string
	for _, ev := range c.all() {
		statuses = append(statuses, ev.(events.ConnectionChanged).Status)
	}
	assert.Equal(t, []string{"open", "connecting", "open"}, statuses)
}
