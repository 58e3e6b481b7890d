package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/origin"
	"sapphire-kv/internal/wire"
)

type fakeBroker struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeBroker) Publish(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakeBroker) Close() error { return nil }

func (f *fakeBroker) all() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// TestPublisherDrainsEvents covers the first Notify on a brand-new object: it
// must emit both a "publish" frame (the registration announce) and an
// "events" frame (the queued attribute write) — not just the latter, since a
// peer that only ever sees events for an object it was never told about
// drops them as unknown.
func TestPublisherDrainsEvents(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "origin-1"}, fabric.NewSignalBus(), 3)
	broker := &fakeBroker{}
	pub := New(reg, broker, wire.Channel, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	obj := reg.NewObject("widgets", map[string]any{"color": "red"})
	obj.Notify()

	require.Eventually(t, func() bool { return len(broker.all()) >= 2 }, time.Second, 5*time.Millisecond)

	var sawPublish, sawEvents bool
	for _, raw := range broker.all() {
		frame, err := wire.DecodeFrame(raw)
		require.NoError(t, err)
		switch frame.Method {
		case wire.MethodPublish:
			var dict map[string]any
			require.NoError(t, json.Unmarshal(frame.Data, &dict))
			assert.Equal(t, obj.ID(), dict["object_id"])
			sawPublish = true
		case wire.MethodEvents:
			var entries []map[string]any
			require.NoError(t, json.Unmarshal(frame.Data, &entries))
			require.Len(t, entries, 1)
			assert.Equal(t, obj.ID(), entries[0]["object_id"])
			sawEvents = true
		}
	}
	assert.True(t, sawPublish, "expected a publish frame on first notify")
	assert.True(t, sawEvents, "expected an events frame for the queued write")
}
