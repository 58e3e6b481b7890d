// Package ttlreaper periodically decrements every replica's time-to-live and
// evicts the ones that fall below zero without having been refreshed by a
// full-object announce (an initial publish or a re-announce); event batches
// do not reset the TTL.
package ttlreaper

import (
	"context"
	"log"
	"time"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/observability"
)

// Reaper ticks at a fixed interval, decrementing every replica's TTL by
// decrementSeconds and calling Registry.TickTTL.
type Reaper struct {
	reg              *fabric.Registry
	interval         time.Duration
	decrementSeconds int32
	logger           *log.Logger
}

// New constructs a Reaper ticking every interval, decrementing replica TTLs
// by decrementSeconds on each tick. In production these normally match
// (decrementSeconds == int32(interval.Seconds())); they are kept separate so
// tests can use a short wall-clock interval without a near-zero decrement.
func New(reg *fabric.Registry, interval time.Duration, decrementSeconds int32, logger *log.Logger) *Reaper {
	if logger == nil {
		logger = log.New(log.Writer(), "[ttl] ", log.LstdFlags)
	}
	return &Reaper{reg: reg, interval: interval, decrementSeconds: decrementSeconds, logger: logger}
}

// Run blocks, ticking until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := r.reg.TickTTL(r.decrementSeconds)
			if len(evicted) > 0 {
				observability.RecordTTLEvictions(len(evicted))
				r.logger.Printf("evicted %d expired replica(s): %v", len(evicted), evicted)
			}
		}
	}
}
