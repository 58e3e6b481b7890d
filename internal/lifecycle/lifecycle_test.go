package lifecycle

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
	"sapphire-kv/internal/process"
	"sapphire-kv/internal/publisher"
	"sapphire-kv/internal/wire"
)

type fakeBroker struct {
	mu        sync.Mutex
	published [][]byte
}

func (f *fakeBroker) Publish(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBroker) all() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.published))
	copy(out, f.published)
	return out
}
func (f *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}
func (f *fakeBroker) Close() error { return nil }

func TestControllerStartAnnouncesOriginAndRejectsDoubleStart(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "origin-1", Hostname: "host-1"}, fabric.NewSignalBus(), 3)
	broker := &fakeBroker{}
	pub := publisher.New(reg, broker, wire.Channel, nil)
	dir := process.NewDirectory()

	ctrl := New(reg, dir, pub, nil, pub)

	require.NoError(t, ctrl.Start(context.Background()))
	require.ErrorIs(t, ctrl.Start(context.Background()), fabric.ErrAlreadyStarted)

	assert.Eventually(t, func() bool {
		return len(reg.Collection("origin")) == 1
	}, time.Second, 5*time.Millisecond)

	self := reg.Collection("origin")[0]
	require.Eventually(t, func() bool {
		for _, raw := range broker.all() {
			frame, err := wire.DecodeFrame(raw)
			if err != nil || frame.Method != wire.MethodPublish {
				continue
			}
			var dict map[string]any
			if json.Unmarshal(frame.Data, &dict) == nil && dict["object_id"] == self.ID() {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "expected the origin object to be announced with a publish frame")

	ctrl.Stop(context.Background())
	ctrl.Join()
}
