package ttlreaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/origin"
)

func TestReaperEvictsExpiredReplicas(t *testing.T) {
	reg := fabric.NewRegistry(origin.Origin{ID: "origin-1"}, fabric.NewSignalBus(), 1)
	replica := reg.UpsertReplica("remote-1", "widgets", "origin-2", map[string]any{"color": "blue"})

	r := New(reg, 5*time.Millisecond, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	assert.Eventually(t, func() bool {
		_, err := reg.Get(replica.ID())
		return err == fabric.ErrNotFound
	}, time.Second, 5*time.Millisecond)
}
