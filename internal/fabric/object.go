package fabric

import (
	"reflect"
	"sync"
	"time"

	"sapphire-kv/internal/codec"
)

var structuralKeys = map[string]bool{
	"object_id":  true,
	"collection": true,
	"origin_id":  true,
	"updated_at": true,
}

// Object is a mutable collection of named attributes. A locally-originated
// object is the source of truth for its attributes; mutations flow through
// Set, accumulate in the pending-event buffer, and are flushed by Notify. A
// replica object is hydrated from a "publish" wire frame and kept current
// either by a later full re-announce (hydrateFromDict) or by the event
// pipeline draining its inbound queue (EnqueueInbound / DrainAndApply).
type Object struct {
	mu sync.Mutex

	reg        *Registry
	id         string
	collection string
	originID   string
	local      bool
	registered bool

	attrs     map[string]any
	updatedAt time.Time
	ttl       int32

	pending map[string]Event

	inboundMu     sync.Mutex
	inbound       []Event
	queuedForWork bool
}

// ID returns the object's identifier.
func (o *Object) ID() string { return o.id }

// Collection returns the object's collection name.
func (o *Object) Collection() string { return o.collection }

// OriginID returns the id of the process that owns this object.
func (o *Object) OriginID() string { return o.originID }

// IsOriginator reports whether this process owns the object (as opposed to
// holding a TTL-bound replica).
func (o *Object) IsOriginator() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.local
}

// Get reads a single attribute. ok is false if the key has never been set.
func (o *Object) Get(key string) (value any, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	value, ok = o.attrs[key]
	return value, ok
}

// Attrs returns a shallow copy of every attribute currently held.
func (o *Object) Attrs() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]any, len(o.attrs))
	for k, v := range o.attrs {
		out[k] = v
	}
	return out
}

// Set writes key, queuing a pending event if the object is registered. A
// brand-new key may only be introduced by the originator; an already-present
// key may be overwritten regardless of ownership.
func (o *Object) Set(key string, value any) error {
	if structuralKeys[key] {
		return ErrKeyError
	}
	o.mu.Lock()
	_, exists := o.attrs[key]
	if !exists && !o.local {
		o.mu.Unlock()
		return ErrNotOriginator
	}
	now := time.Now().UTC()
	o.attrs[key] = value
	o.updatedAt = now
	if o.registered {
		o.pending[key] = Event{
			ObjectID:   o.id,
			Collection: o.collection,
			Key:        key,
			Value:      value,
			UpdatedAt:  now,
		}
	}
	o.mu.Unlock()
	return nil
}

// BatchSet applies every key/value pair via Set, stopping at the first
// error. Keys already applied before the error remain applied — there is no
// partial-batch rollback, matching the non-transactional nature of the
// fabric's eventual-consistency model.
func (o *Object) BatchSet(values map[string]any) error {
	for k, v := range values {
		if err := o.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Update silently writes key — no pending event is queued, regardless of
// ownership — only if the new value differs from the current one or the key
// is not yet present. This is the primitive the event pipeline uses to apply
// inbound writes, and is equally available to application code that wants
// to change an attribute without re-announcing it.
func (o *Object) Update(key string, value any) error {
	if structuralKeys[key] {
		return ErrKeyError
	}
	o.mu.Lock()
	current, exists := o.attrs[key]
	if exists && reflect.DeepEqual(current, value) {
		o.mu.Unlock()
		return nil
	}
	o.attrs[key] = value
	o.updatedAt = time.Now().UTC()
	o.mu.Unlock()
	return nil
}

// BatchUpdate calls Update for every key/value pair, stopping at the first
// error.
func (o *Object) BatchUpdate(values map[string]any) error {
	for k, v := range values {
		if err := o.Update(k, v); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueInbound appends events to the object's inbound FIFO (the replica
// side's queue of writes awaiting application) and reports whether the
// caller — the pipeline's fan-in dispatcher — must schedule a worker for
// this object. Scheduling is edge-triggered: if a worker is already
// scheduled (or running) for this object, shouldSchedule is false and the
// newly-queued events ride along with whatever that worker eventually
// drains.
func (o *Object) EnqueueInbound(events []Event) (shouldSchedule bool) {
	o.inboundMu.Lock()
	defer o.inboundMu.Unlock()
	o.inbound = append(o.inbound, events...)
	if o.queuedForWork {
		return false
	}
	o.queuedForWork = true
	return true
}

// DrainAndApply drains the inbound FIFO, deduplicating by key (last event
// per key wins within the drain), applies the result with Update's
// absent-or-different rule while holding the object's attribute lock for the
// whole batch, and returns the deduped events that were
// applied plus whether more events arrived while this drain was in flight
// (in which case the caller must reschedule a worker for this object to
// avoid a lost wakeup).
func (o *Object) DrainAndApply() (applied []Event, requeue bool) {
	o.inboundMu.Lock()
	batch := o.inbound
	o.inbound = nil
	o.inboundMu.Unlock()

	deduped := make(map[string]Event, len(batch))
	order := make([]string, 0, len(batch))
	for _, ev := range batch {
		if structuralKeys[ev.Key] {
			continue
		}
		if _, seen := deduped[ev.Key]; !seen {
			order = append(order, ev.Key)
		}
		deduped[ev.Key] = ev
	}

	applied = make([]Event, 0, len(order))
	o.mu.Lock()
	for _, key := range order {
		ev := deduped[key]
		if current, exists := o.attrs[key]; !exists || !reflect.DeepEqual(current, ev.Value) {
			o.attrs[key] = ev.Value
			o.updatedAt = time.Now().UTC()
		}
		applied = append(applied, ev)
	}
	o.mu.Unlock()

	o.inboundMu.Lock()
	if len(o.inbound) > 0 {
		requeue = true
	} else {
		o.queuedForWork = false
	}
	o.inboundMu.Unlock()

	return applied, requeue
}

// Notify flushes pending events: it advances updated_at, snapshots and
// clears the pending buffer under the object lock, then — outside the lock —
// registers the object if this is its first notify, hands any pending batch
// to the registry for outbound publication, and fires the "event sent"
// signal. Registration happens even when there is nothing pending: a freshly
// created object with no initial attributes must still become visible to
// peers on its first Notify. Returns the flushed events (nil if nothing was
// pending).
func (o *Object) Notify() []Event {
	o.mu.Lock()
	o.updatedAt = time.Now().UTC()
	events := make([]Event, 0, len(o.pending))
	for _, ev := range o.pending {
		events = append(events, ev)
	}
	o.pending = make(map[string]Event)
	wasRegistered := o.registered
	o.mu.Unlock()

	if !wasRegistered {
		o.reg.ensureRegistered(o)
	}
	if len(events) == 0 {
		return nil
	}
	o.reg.enqueueOutbound(o.id, o.collection, o.originID, events)
	o.reg.bus.Emit(SignalEventSent, o.id, events)
	return events
}

// resetTTLLocked reinstates the default TTL. Callers must hold o.mu.
func (o *Object) resetTTLLocked() {
	if o.local {
		return
	}
	o.ttl = o.reg.defaultTTL
}

// DecrementTTL reduces the remaining TTL by the reaper's tick size (seconds)
// and returns the new value. Local (originator) objects never expire and
// this always returns 0 for them.
func (o *Object) DecrementTTL(by int32) int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.local {
		return 0
	}
	o.ttl -= by
	return o.ttl
}

// ToDict renders the full object — structural fields plus attributes — for
// the wire ("publish"/"request_objects" reply) and the admin API. This is the
// inverse of hydrateFromDict: from_dict(to_dict(o)) preserves every
// attribute, structural field, and the timestamp.
func (o *Object) ToDict() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]any, len(o.attrs)+4)
	for k, v := range o.attrs {
		out[k] = v
	}
	out["object_id"] = o.id
	out["collection"] = o.collection
	out["origin_id"] = o.originID
	out["updated_at"] = codec.EncodeTimestamp(o.updatedAt)
	return out
}

// hydrateFromDict applies a full object dict received over the wire — the
// initial "publish" announce or a periodic re-announce — resetting the TTL.
// A full re-announce is authoritative for every field, so it overwrites
// unconditionally rather than comparing against the current value. A missing
// or malformed updated_at falls back to the current time rather than
// rejecting the whole frame.
func (o *Object) hydrateFromDict(data map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range data {
		if structuralKeys[k] {
			continue
		}
		o.attrs[k] = v
	}
	o.updatedAt = time.Now().UTC()
	if raw, ok := data["updated_at"].(string); ok {
		if ts, err := codec.DecodeTimestamp(raw); err == nil {
			o.updatedAt = ts
		}
	}
	o.resetTTLLocked()
	o.registered = true
}
