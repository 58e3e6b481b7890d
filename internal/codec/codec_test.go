package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := time.Date(2026, 7, 30, 12, 34, 56, 789000000, time.UTC)
	encoded := EncodeTimestamp(in)
	assert.Equal(t, "2026-07-30T12:34:56.789000", encoded)

	out, err := DecodeTimestamp(encoded)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

func TestDecodeTolerateMissingFraction(t *testing.T) {
	out, err := DecodeTimestamp("2026-07-30T12:34:56")
	require.NoError(t, err)
	assert.Equal(t, 2026, out.Year())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeTimestamp("not-a-timestamp")
	require.Error(t, err)
}
