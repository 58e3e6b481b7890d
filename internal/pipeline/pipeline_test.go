package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/origin"
)

func TestDispatcherAppliesKnownObject(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "origin-1"}, fabric.NewSignalBus(), 3)
	replica := reg.UpsertReplica("remote-1", "widgets", "origin-2", map[string]any{"color": "blue"})

	received := make(chan []fabric.Event, 1)
	reg.Bus().On(fabric.SignalEventReceived, func(objectID string, events []fabric.Event) {
		received <- events
	})

	d := NewDispatcher(reg, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Dispatch(replica.ID(), "origin-2", []fabric.Event{
		{Key: "color", Value: "green", UpdatedAt: time.Now().UTC().Add(time.Minute)},
	})

	select {
	case events := <-received:
		require.Len(t, events, 1)
		assert.Equal(t, "green", events[0].Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for applied events")
	}
}

func TestDispatcherDropsUnknownObjectSilently(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "origin-1"}, fabric.NewSignalBus(), 3)
	d := NewDispatcher(reg, 1, nil)

	assert.NotPanics(t, func() {
		d.Dispatch("unknown-id", "origin-2", []fabric.Event{{Key: "color", Value: "blue"}})
	})
}
