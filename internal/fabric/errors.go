package fabric

import "errors"

var (
	// ErrNotFound is returned when a lookup by object id or collection/id
	// pair has no match in the registry.
	ErrNotFound = errors.New("fabric: object not found")
	// ErrKeyError is returned when a mutation targets a structural key
	// ("object_id", "collection", "origin_id", "updated_at") that callers may
	// not overwrite through Set/Update.
	ErrKeyError = errors.New("fabric: key is reserved")
	// ErrNotOriginator is returned when a caller attempts an originator-only
	// operation (Set on a new key, Kill, unpublish) against a replica.
	ErrNotOriginator = errors.New("fabric: object is not locally originated")
	// ErrAlreadyStarted is returned by lifecycle.Controller.Start when the
	// fabric is already running.
	ErrAlreadyStarted = errors.New("fabric: already started")
)
