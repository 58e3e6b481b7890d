// Package wire encodes and decodes the frames exchanged over the broker
// channel: {"method", "origin_id", "data"}, with data shaped per method.
package wire

import (
	"encoding/json"
	"fmt"

	"sapphire-kv/internal/codec"
	"sapphire-kv/internal/fabric"
)

// Channel is the single broker channel every fabric participant publishes
// to and subscribes on.
const Channel = "sapphire_objects"

// Method names understood by every participant on the channel.
const (
	MethodPublish        = "publish"
	MethodEvents         = "events"
	MethodDelete         = "delete"
	MethodRequestObjects = "request_objects"
)

// Frame is the envelope every message on the broker channel is wrapped in.
type Frame struct {
	Method   string          `json:"method"`
	OriginID string          `json:"origin_id"`
	Data     json.RawMessage `json:"data"`
}

type eventEntry struct {
	ObjectID  string `json:"object_id"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

type deletePayload struct {
	ObjectID string `json:"object_id"`
}

func encodeFrame(method, originID string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s payload: %w", method, err)
	}
	return json.Marshal(Frame{Method: method, OriginID: originID, Data: raw})
}

// DecodeFrame unwraps the outer envelope only; callers dispatch on
// frame.Method and call the matching Decode* helper for frame.Data.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	return f, nil
}

// EncodePublish renders a full-object announce frame.
func EncodePublish(originID string, dict map[string]any) ([]byte, error) {
	return encodeFrame(MethodPublish, originID, dict)
}

// DecodePublish extracts the object id, collection and the full attribute
// dict from a "publish" frame's data.
func DecodePublish(data json.RawMessage) (id, collection string, dict map[string]any, err error) {
	if err = json.Unmarshal(data, &dict); err != nil {
		return "", "", nil, fmt.Errorf("wire: decode publish payload: %w", err)
	}
	id, _ = dict["object_id"].(string)
	collection, _ = dict["collection"].(string)
	if id == "" || collection == "" {
		return "", "", nil, fmt.Errorf("wire: publish payload missing object_id/collection")
	}
	return id, collection, dict, nil
}

// EncodeEvents renders a fine-grained event-batch frame: a flat array of
// event dictionaries, each carrying its own object_id.
func EncodeEvents(originID string, batch fabric.OutboundEvents) ([]byte, error) {
	entries := make([]eventEntry, 0, len(batch.Events))
	for _, ev := range batch.Events {
		entries = append(entries, eventEntry{
			ObjectID:  batch.ObjectID,
			Key:       ev.Key,
			Value:     ev.Value,
			Timestamp: codec.EncodeTimestamp(ev.UpdatedAt),
		})
	}
	return encodeFrame(MethodEvents, originID, entries)
}

// DecodeEvents extracts the target object id and applied events from an
// "events" frame's data. Every entry in a single frame shares the same
// object_id (a frame is one Notify's worth of one object's mutations), so
// the id is read off the first entry.
func DecodeEvents(data json.RawMessage) (id string, events []fabric.Event, err error) {
	var entries []eventEntry
	if err = json.Unmarshal(data, &entries); err != nil {
		return "", nil, fmt.Errorf("wire: decode events payload: %w", err)
	}
	events = make([]fabric.Event, 0, len(entries))
	for _, e := range entries {
		ts, terr := codec.DecodeTimestamp(e.Timestamp)
		if terr != nil {
			return "", nil, fmt.Errorf("wire: decode events payload: %w", terr)
		}
		events = append(events, fabric.Event{
			ObjectID:  e.ObjectID,
			Key:       e.Key,
			Value:     e.Value,
			UpdatedAt: ts,
		})
	}
	if len(entries) > 0 {
		id = entries[0].ObjectID
	}
	return id, events, nil
}

// EncodeDelete renders an unpublish-announce frame.
func EncodeDelete(originID, objectID string) ([]byte, error) {
	return encodeFrame(MethodDelete, originID, deletePayload{ObjectID: objectID})
}

// DecodeDelete extracts the object id from a "delete" frame's data.
func DecodeDelete(data json.RawMessage) (id string, err error) {
	var payload deletePayload
	if err = json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("wire: decode delete payload: %w", err)
	}
	return payload.ObjectID, nil
}

// EncodeRequestObjects renders the "please re-announce everything" frame.
func EncodeRequestObjects(originID string) ([]byte, error) {
	return encodeFrame(MethodRequestObjects, originID, struct{}{})
}
