package transport

import (
	"context"
	"time"

	"promochat/pkg/chat/state"
	"promochat/pkg/events"

	"github.com/patrickmn/go-cache"
)

// Deduplicated drops inbound events whose EventID was already delivered
// within the TTL. Events without an id pass through.
type Deduplicated struct {
	Emitter
	inner Adapter
	seen  *cache.Cache
}

// Deduplicate wraps an adapter with duplicate-notification suppression.
func Deduplicate(inner Adapter, ttl time.Duration) *Deduplicated {
	d := &Deduplicated{
		inner: inner,
		seen:  cache.New(ttl, 2*ttl),
	}
	inner.OnEvent(d.filter)
	return d
}

func (d *Deduplicated) filter(ev events.Event) {
	if id := ev.Header().EventID; id != "" {
		// Add fails when the key is already present and unexpired.
		if err := d.seen.Add(id, struct{}{}, cache.DefaultExpiration); err != nil {
			return
		}
	}
	d.Emit(ev)
}

func (d *Deduplicated) Connect(ctx context.Context) error { return d.inner.Connect(ctx) }

func (d *Deduplicated) Send(ctx context.Context, a events.Action) error {
	return d.inner.Send(ctx, a)
}

func (d *Deduplicated) Status() Status { return d.inner.Status() }
func (d *Deduplicated) Mode() Mode     { return d.inner.Mode() }

func (d *Deduplicated) RescheduleFor(sessionID string, stage state.Stage) {
	d.inner.RescheduleFor(sessionID, stage)
}

func (d *Deduplicated) CancelSchedule() { d.inner.CancelSchedule() }

func (d *Deduplicated) Close() error {
	d.Stop()
	d.seen.Flush()
	return d.inner.Close()
}
