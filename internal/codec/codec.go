// Package codec handles the wire-level timestamp encoding shared by every
// fabric frame: ISO-8601 with microsecond precision on the way out, and a
// tolerant decode on the way in since peers running other implementations
// may omit the fractional part.
package codec

import (
	"fmt"
	"time"
)

const (
	layoutWithMicros = "2006-01-02T15:04:05.000000"
	layoutSeconds    = "2006-01-02T15:04:05"
)

// EncodeTimestamp renders t in UTC with microsecond precision.
func EncodeTimestamp(t time.Time) string {
	return t.UTC().Format(layoutWithMicros)
}

// DecodeTimestamp parses a timestamp produced by EncodeTimestamp or by a peer
// that dropped the fractional-seconds component.
func DecodeTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(layoutWithMicros, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(layoutSeconds, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("codec: %q is not a recognized timestamp", value)
}
