// Package reannounce periodically re-publishes every locally-originated
// object in full, so a peer that missed an event batch (or just joined)
// eventually converges without needing a dedicated reconciliation protocol.
package reannounce

import (
	"context"
	"time"

	"sapphire-kv/internal/fabric"
)

// Reannouncer ticks at a fixed rate, queuing a full-object publish for every
// object this process originates.
type Reannouncer struct {
	reg      *fabric.Registry
	interval time.Duration
}

// New constructs a Reannouncer ticking every interval.
func New(reg *fabric.Registry, interval time.Duration) *Reannouncer {
	return &Reannouncer{reg: reg, interval: interval}
}

// Run blocks, re-announcing on every tick, until ctx is canceled.
func (r *Reannouncer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, o := range r.reg.All() {
				if o.IsOriginator() {
					r.reg.EnqueuePublish(o)
				}
			}
		}
	}
}
