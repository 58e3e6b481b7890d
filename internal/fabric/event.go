package fabric

import "time"

// Event is a single attribute mutation, the unit of fine-grained replication.
// A batch of Events sharing an ObjectID is what Notify flushes to the
// publisher and what the pipeline applies atomically on the receiving side.
type Event struct {
	ObjectID   string
	Collection string
	Key        string
	Value      any
	UpdatedAt  time.Time
}
