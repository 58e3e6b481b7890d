// Package pipeline applies fine-grained event batches to registered objects:
// a single-goroutine dispatcher resolves the target object, classifies
// lookup failures, and edge-triggers scheduling onto a fixed-size worker
// pool; each worker drains an object's inbound queue atomically and fans the
// result out on the signal bus.
package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/observability"
)

// Dispatcher resolves each incoming event batch's target object and, the
// first time an object accumulates unapplied events, schedules exactly one
// worker visit for it. Dispatch is called from the single subscriber
// goroutine, so the registry lookup that classifies "object not found" from
// any other error happens before a batch ever reaches a worker.
type Dispatcher struct {
	reg     *fabric.Registry
	workers int
	queue   chan *fabric.Object
	logger  *log.Logger
}

// NewDispatcher constructs a Dispatcher with the given worker count (10 if
// workers <= 0) and a worker queue of fixed depth 4096.
func NewDispatcher(reg *fabric.Registry, workers int, logger *log.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 10
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[pipeline] ", log.LstdFlags)
	}
	return &Dispatcher{
		reg:     reg,
		workers: workers,
		queue:   make(chan *fabric.Object, 4096),
		logger:  logger,
	}
}

// Dispatch resolves objectID against the registry and, if found, appends
// events to its inbound queue, scheduling a worker visit if one is not
// already pending. A missing object is logged with its own message and
// counted under the "unknown_object" drop reason, apart from any other
// registry error ("registry_error"), since it is an expected race between a
// peer's first event batch and its not-yet-processed publish announce (or a
// replica evicted concurrently by the TTL reaper) — not a sign of a
// programming error.
func (d *Dispatcher) Dispatch(objectID, originID string, events []fabric.Event) {
	obj, err := d.reg.Get(objectID)
	if err != nil {
		if errors.Is(err, fabric.ErrNotFound) {
			d.logger.Printf("events for unknown object %s (origin=%s), awaiting publish announce", objectID, originID)
			observability.RecordEventDropped("unknown_object")
		} else {
			d.logger.Printf("unexpected registry error resolving %s: %v", objectID, err)
			observability.RecordEventDropped("registry_error")
		}
		return
	}

	if obj.EnqueueInbound(events) {
		d.schedule(obj)
	}
}

func (d *Dispatcher) schedule(obj *fabric.Object) {
	select {
	case d.queue <- obj:
	default:
		d.logger.Printf("worker queue full, dropping scheduling for %s", obj.ID())
		observability.RecordEventDropped("queue_full")
	}
}

// Run starts the worker pool and blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	wg.Wait()
}
