package fabric

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"sapphire-kv/internal/observability"
	"sapphire-kv/internal/origin"
)

// OutboundEvents is a batch of fine-grained attribute mutations awaiting
// publication, as flushed by Object.Notify.
type OutboundEvents struct {
	ObjectID   string
	Collection string
	OriginID   string
	Events     []Event
}

// Registry is the process-local store of every known object — both
// originated (this process owns them) and replicated (TTL-bound copies of a
// peer's objects). It owns the in-process signal bus and the outbound
// queues the publisher drains; it never talks to the transport directly.
//
// Lock ordering: Registry.mu is never acquired while an Object's own mutex
// is held. Every method here either operates purely at the registry level,
// or releases the registry lock before touching an Object.
type Registry struct {
	mu           sync.RWMutex
	objects      map[string]*Object
	byCollection map[string]map[string]struct{}

	localOrigin origin.Origin
	bus         *SignalBus
	defaultTTL  int32

	outboundEvents  chan OutboundEvents
	outboundPublish chan *Object
	outboundDelete  chan string
}

// NewRegistry constructs an empty registry for the given local origin.
// defaultTTL is the number of seconds a replica survives without a refresh;
// each reaper tick subtracts its tick size in seconds (see TickTTL and
// internal/ttlreaper).
func NewRegistry(local origin.Origin, bus *SignalBus, defaultTTL int32) *Registry {
	return &Registry{
		objects:         make(map[string]*Object),
		byCollection:    make(map[string]map[string]struct{}),
		localOrigin:     local,
		bus:             bus,
		defaultTTL:      defaultTTL,
		outboundEvents:  make(chan OutboundEvents, 1024),
		outboundPublish: make(chan *Object, 256),
		outboundDelete:  make(chan string, 256),
	}
}

// LocalOrigin returns this process's origin identity.
func (r *Registry) LocalOrigin() origin.Origin { return r.localOrigin }

// Bus returns the in-process signal bus shared by every component.
func (r *Registry) Bus() *SignalBus { return r.bus }

// NewObject constructs a locally-originated object with the given initial
// attributes. The object is not yet visible to Get/Collection/All — it
// becomes registered on its first Notify (see ensureRegistered) — but it is
// always safe to attach further attributes to it before that first flush.
func (r *Registry) NewObject(collection string, initial map[string]any) *Object {
	now := time.Now().UTC()
	o := &Object{
		reg:        r,
		id:         uuid.NewString(),
		collection: collection,
		originID:   r.localOrigin.ID,
		local:      true,
		attrs:      make(map[string]any, len(initial)),
		pending:    make(map[string]Event),
		updatedAt:  now,
	}
	for k, v := range initial {
		if structuralKeys[k] {
			continue
		}
		o.attrs[k] = v
		o.pending[k] = Event{ObjectID: o.id, Collection: collection, Key: k, Value: v, UpdatedAt: now}
	}
	return o
}

// ensureRegistered makes o visible to the registry if it is not already,
// following the lock-ordering rule: the object lock is checked and released
// before the registry lock is taken, and the registry lock is released
// before the object is marked registered. The insert also announces the
// object to the broker via EnqueuePublish — put() in spec terms is insert
// plus publish, not insert alone — so peers learn of the object before any
// events frame referencing it can arrive.
func (r *Registry) ensureRegistered(o *Object) {
	o.mu.Lock()
	already := o.registered
	o.mu.Unlock()
	if already {
		return
	}

	r.mu.Lock()
	_, exists := r.objects[o.id]
	var size int
	if !exists {
		r.objects[o.id] = o
		r.indexCollectionLocked(o.collection, o.id)
	}
	size = len(r.byCollection[o.collection])
	r.mu.Unlock()

	if !exists {
		observability.SetRegistrySize(o.collection, size)
		r.EnqueuePublish(o)
	}

	o.mu.Lock()
	o.registered = true
	o.mu.Unlock()
}

// UpsertReplica applies an incoming full-object announce ("publish" frame).
// If the object is already known its fields are refreshed and its TTL
// reset; otherwise a new replica Object is created and registered.
func (r *Registry) UpsertReplica(id, collection, originID string, data map[string]any) *Object {
	r.mu.RLock()
	existing, ok := r.objects[id]
	r.mu.RUnlock()
	if ok {
		existing.hydrateFromDict(data)
		return existing
	}

	o := &Object{
		reg:        r,
		id:         id,
		collection: collection,
		originID:   originID,
		local:      false,
		attrs:      make(map[string]any, len(data)),
		pending:    make(map[string]Event),
	}
	o.hydrateFromDict(data)

	r.mu.Lock()
	if winner, raced := r.objects[id]; raced {
		r.mu.Unlock()
		winner.hydrateFromDict(data)
		return winner
	}
	r.objects[id] = o
	r.indexCollectionLocked(collection, id)
	r.mu.Unlock()
	r.reportCollectionSize(collection)
	return o
}

// Get returns the object with the given id.
func (r *Registry) Get(id string) (*Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// Collection returns every object currently registered under name.
func (r *Registry) Collection(name string) []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byCollection[name]
	out := make([]*Object, 0, len(ids))
	for id := range ids {
		if o, ok := r.objects[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// CollectionNames lists every collection with at least one registered object.
func (r *Registry) CollectionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byCollection))
	for name := range r.byCollection {
		out = append(out, name)
	}
	return out
}

// All returns every object currently registered, across every collection.
func (r *Registry) All() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Object, 0, len(r.objects))
	for _, o := range r.objects {
		out = append(out, o)
	}
	return out
}

// Query returns every registered object whose flattened dictionary
// (structural fields plus attrs, as rendered by ToDict) contains every key in
// predicate with the given value. A key absent from the dictionary fails the
// match. An empty predicate matches everything, equivalent to All. Snapshots
// the registry under the registry lock, then evaluates each object's
// predicate match after releasing it, preserving the rule that the registry
// lock is never held while touching an object's own lock.
func (r *Registry) Query(predicate map[string]any) []*Object {
	candidates := r.All()
	if len(predicate) == 0 {
		return candidates
	}
	out := make([]*Object, 0, len(candidates))
	for _, o := range candidates {
		dict := o.ToDict()
		if matchesPredicate(dict, predicate) {
			out = append(out, o)
		}
	}
	return out
}

func matchesPredicate(dict, predicate map[string]any) bool {
	for k, want := range predicate {
		got, ok := dict[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares two attribute values for equality. attrs may hold
// non-comparable types (slices, maps) decoded from JSON, so a plain == would
// panic; fall back to a deep comparison in that case.
func valuesEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = reflect.DeepEqual(a, b)
		}
	}()
	return a == b
}

// Delete removes id from the registry and, if it was locally originated,
// queues an outbound "delete" announce so peers drop their replicas. It is
// an error to delete a replica directly — callers must wait for its TTL to
// expire or originate the deletion from the owning process.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	o, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if !o.local {
		r.mu.Unlock()
		return ErrNotOriginator
	}
	delete(r.objects, id)
	r.removeFromCollectionLocked(o.collection, id)
	r.mu.Unlock()
	r.reportCollectionSize(o.collection)

	select {
	case r.outboundDelete <- id:
	default:
	}
	return nil
}

// ApplyRemoteDelete evicts a replica in response to a peer's unpublish
// announce. Unlike Delete, it does not require local origination — the
// remote origin is the one deciding its own object's lifetime.
func (r *Registry) ApplyRemoteDelete(id string) {
	r.evict(id)
}

// evict drops a replica from the registry. Called by TickTTL once a
// replica's TTL falls below zero (TickTTL already excludes locally-originated
// objects) and by ApplyRemoteDelete on a peer's unpublish announce.
func (r *Registry) evict(id string) {
	r.mu.Lock()
	o, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.objects, id)
	r.removeFromCollectionLocked(o.collection, id)
	r.mu.Unlock()
	r.reportCollectionSize(o.collection)
}

// reportCollectionSize records the current size of collection with the
// observability gauge. Callers must not hold r.mu.
func (r *Registry) reportCollectionSize(collection string) {
	r.mu.RLock()
	size := len(r.byCollection[collection])
	r.mu.RUnlock()
	observability.SetRegistrySize(collection, size)
}

func (r *Registry) indexCollectionLocked(collection, id string) {
	set, ok := r.byCollection[collection]
	if !ok {
		set = make(map[string]struct{})
		r.byCollection[collection] = set
	}
	set[id] = struct{}{}
}

func (r *Registry) removeFromCollectionLocked(collection, id string) {
	if set, ok := r.byCollection[collection]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byCollection, collection)
		}
	}
}

// enqueueOutbound hands a flushed batch of events to the publisher. Sends
// are non-blocking: a full queue drops the batch rather than stalling the
// caller's Notify, since the next Notify (or a re-announce) will eventually
// carry forward the current state.
func (r *Registry) enqueueOutbound(objectID, collection, originID string, events []Event) {
	batch := OutboundEvents{ObjectID: objectID, Collection: collection, OriginID: originID, Events: events}
	select {
	case r.outboundEvents <- batch:
	default:
	}
}

// EnqueuePublish queues a full-object announce, used for the initial publish
// of a newly created object and for periodic re-announces.
func (r *Registry) EnqueuePublish(o *Object) {
	select {
	case r.outboundPublish <- o:
	default:
	}
}

// Events returns the channel the publisher drains for fine-grained event
// batches.
func (r *Registry) Events() <-chan OutboundEvents { return r.outboundEvents }

// Publishes returns the channel the publisher drains for full-object
// announces.
func (r *Registry) Publishes() <-chan *Object { return r.outboundPublish }

// Deletes returns the channel the publisher drains for unpublish
// announces.
func (r *Registry) Deletes() <-chan string { return r.outboundDelete }

// TickTTL decrements every replica's TTL by tickSeconds and evicts those
// that fall below zero. Called once per internal/ttlreaper tick; tickSeconds
// is normally the reaper's wake interval, matching spec.md's "decrement by
// 10 every 10 seconds" reference cadence.
func (r *Registry) TickTTL(tickSeconds int32) (evicted []string) {
	for _, o := range r.All() {
		if o.IsOriginator() {
			continue
		}
		if o.DecrementTTL(tickSeconds) < 0 {
			r.evict(o.id)
			evicted = append(evicted, o.id)
		}
	}
	return evicted
}
