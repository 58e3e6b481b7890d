// Package origin identifies the local process participating in the fabric.
package origin

import (
	"os"

	"github.com/google/uuid"
)

// Origin is the identity every locally-created object is stamped with and
// the value compared against incoming frames to suppress loopback.
type Origin struct {
	ID       string
	Hostname string
}

// New mints a fresh origin identity for this process.
func New() Origin {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return Origin{
		ID:       uuid.NewString(),
		Hostname: host,
	}
}
