package subscriber

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/origin"
	"sapphire-kv/internal/pipeline"
	"sapphire-kv/internal/wire"
)

type fakeBroker struct {
	subscriptions chan chan []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscriptions: make(chan chan []byte, 4)}
}

func (f *fakeBroker) Publish(context.Context, string, []byte) error { return nil }

func (f *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 8)
	select {
	case f.subscriptions <- ch:
	default:
	}
	return ch, nil
}

func (f *fakeBroker) Close() error { return nil }

type fakeRequester struct {
	calls int
}

func (f *fakeRequester) RequestObjects(ctx context.Context) { f.calls++ }

func TestSubscriberAppliesRemotePublishAndRequestsObjectsOnSubscribe(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "local"}, fabric.NewSignalBus(), 3)
	dispatcher := pipeline.NewDispatcher(reg, 2, nil)
	broker := newFakeBroker()
	requester := &fakeRequester{}

	sub := New(reg, broker, wire.Channel, dispatcher, requester, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	var raw chan []byte
	select {
	case raw = <-broker.subscriptions:
	case <-time.After(time.Second):
		t.Fatal("subscriber never subscribed")
	}

	require.Eventually(t, func() bool { return requester.calls > 0 }, time.Second, 5*time.Millisecond)

	frame, err := wire.EncodePublish("peer-1", map[string]any{
		"object_id": "obj-1", "collection": "widgets", "color": "blue",
	})
	require.NoError(t, err)
	raw <- frame

	require.Eventually(t, func() bool {
		obj, err := reg.Get("obj-1")
		if err != nil {
			return false
		}
		v, _ := obj.Get("color")
		return v == "blue"
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriberIgnoresLoopbackFrames(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "local"}, fabric.NewSignalBus(), 3)
	dispatcher := pipeline.NewDispatcher(reg, 2, nil)
	broker := newFakeBroker()
	sub := New(reg, broker, wire.Channel, dispatcher, &fakeRequester{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	var raw chan []byte
	select {
	case raw = <-broker.subscriptions:
	case <-time.After(time.Second):
		t.Fatal("subscriber never subscribed")
	}

	frame, err := wire.EncodePublish("local", map[string]any{
		"object_id": "obj-1", "collection": "widgets", "color": "blue",
	})
	require.NoError(t, err)
	raw <- frame

	time.Sleep(50 * time.Millisecond)
	_, err = reg.Get("obj-1")
	assert.ErrorIs(t, err, fabric.ErrNotFound)
}
