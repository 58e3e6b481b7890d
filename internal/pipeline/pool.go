package pipeline

import (
	"context"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/observability"
)

// worker drains one object's inbound queue per visit, applying the deduped
// batch atomically and firing "event received" for it, then rescheduling
// itself if more events arrived mid-drain.
func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case obj := <-d.queue:
			applied, requeue := obj.DrainAndApply()
			if len(applied) > 0 {
				observability.RecordEventsReceived(len(applied))
				d.reg.Bus().Emit(fabric.SignalEventReceived, obj.ID(), applied)
			}
			if requeue {
				d.schedule(obj)
			}
		}
	}
}
