package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/origin"
)

func TestProcessLifecycle(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "origin-1"}, fabric.NewSignalBus(), 3)
	dir := NewDirectory()

	started := make(chan struct{})
	p := New(reg, dir, "worker-1", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	p.Start(context.Background())
	<-started
	assert.True(t, p.IsRunning())
	assert.Len(t, dir.All(), 1)

	require.NoError(t, p.Kill())
	require.NoError(t, p.Join())
	assert.False(t, p.IsRunning())
}

func TestProcessKillRejectedOnReplica(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "origin-1"}, fabric.NewSignalBus(), 3)
	replica := reg.UpsertReplica("remote-1", "processes", "origin-2", map[string]any{"name": "remote-worker", "running": true})
	p := &Process{obj: replica}
	assert.ErrorIs(t, p.Kill(), fabric.ErrNotOriginator)
}
