package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sapphire-kv/internal/fabric"
)

func TestPublishRoundTrip(t *testing.T) {
	raw, err := EncodePublish("origin-1", map[string]any{
		"object_id": "obj-1", "collection": "widgets", "color": "blue",
	})
	require.NoError(t, err)

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, MethodPublish, frame.Method)
	assert.Equal(t, "origin-1", frame.OriginID)

	id, collection, dict, err := DecodePublish(frame.Data)
	require.NoError(t, err)
	assert.Equal(t, "obj-1", id)
	assert.Equal(t, "widgets", collection)
	assert.Equal(t, "blue", dict["color"])
}

func TestPublishRejectsMissingIdentity(t *testing.T) {
	raw, err := EncodePublish("origin-1", map[string]any{"color": "blue"})
	require.NoError(t, err)
	frame, err := DecodeFrame(raw)
	require.NoError(t, err)

	_, _, _, err = DecodePublish(frame.Data)
	assert.Error(t, err)
}

func TestEventsRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	raw, err := EncodeEvents("origin-1", fabric.OutboundEvents{
		ObjectID:   "obj-1",
		Collection: "widgets",
		OriginID:   "origin-1",
		Events: []fabric.Event{
			{ObjectID: "obj-1", Collection: "widgets", Key: "color", Value: "blue", UpdatedAt: now},
		},
	})
	require.NoError(t, err)

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, MethodEvents, frame.Method)

	id, events, err := DecodeEvents(frame.Data)
	require.NoError(t, err)
	assert.Equal(t, "obj-1", id)
	require.Len(t, events, 1)
	assert.Equal(t, "color", events[0].Key)
	assert.Equal(t, "blue", events[0].Value)
	assert.WithinDuration(t, now, events[0].UpdatedAt, time.Microsecond)
}

func TestDeleteRoundTrip(t *testing.T) {
	raw, err := EncodeDelete("origin-1", "obj-1")
	require.NoError(t, err)

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, MethodDelete, frame.Method)

	id, err := DecodeDelete(frame.Data)
	require.NoError(t, err)
	assert.Equal(t, "obj-1", id)
}

func TestRequestObjectsRoundTrip(t *testing.T) {
	raw, err := EncodeRequestObjects("origin-1")
	require.NoError(t, err)

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, MethodRequestObjects, frame.Method)
	assert.Equal(t, "origin-1", frame.OriginID)
}
