//go:build integration

package redisbroker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestBrokerPublishSubscribeRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	broker := New(addr, nil)
	t.Cleanup(func() { _ = broker.Close() })

	raw, err := broker.Subscribe(ctx, "sapphire_objects")
	require.NoError(t, err)

	// go-redis's SUBSCRIBE confirmation races the publisher below; give the
	// subscription a moment to actually register with the server.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, broker.Publish(ctx, "sapphire_objects", []byte("hello")))

	select {
	case payload := <-raw:
		require.Equal(t, "hello", string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
