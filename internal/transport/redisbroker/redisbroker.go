// Package redisbroker implements transport.Broker on top of Redis PUBLISH
// and SUBSCRIBE, the reference backend — it matches the original
// implementation's redis.Redis(...).pubsub() usage.
package redisbroker

import (
	"context"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"

	"sapphire-kv/internal/observability"
)

const backendName = "redis"

const reconnectDelay = 4 * time.Second

// Broker is a transport.Broker backed by a single Redis connection.
type Broker struct {
	client *redis.Client
	logger *log.Logger
}

// New dials addr lazily (go-redis connects on first use) and wraps it.
func New(addr string, logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.New(log.Writer(), "[redisbroker] ", log.LstdFlags)
	}
	return &Broker{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

// Publish retries with a fixed backoff until ctx is canceled.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	return retry.Do(
		func() error {
			return b.client.Publish(ctx, channel, payload).Err()
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(reconnectDelay),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Printf("publish attempt %d failed: %v", n, err)
		}),
	)
}

// Subscribe establishes one subscription, retrying the initial connection
// with a fixed backoff, and returns a channel that is closed when that
// subscription ends (transport error or ctx cancellation). Callers — the
// internal/subscriber package — own the resubscribe loop so they can
// re-issue a request_objects round-trip each time a subscription is
// (re-)established, matching the original implementation's outer loop.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var sub *redis.PubSub
	err := retry.Do(
		func() error {
			sub = b.client.Subscribe(ctx, channel)
			_, err := sub.Receive(ctx)
			if err != nil {
				_ = sub.Close()
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(reconnectDelay),
		retry.OnRetry(func(n uint, err error) {
			observability.RecordBrokerReconnect(backendName)
			b.logger.Printf("subscribe attempt %d failed: %v", n, err)
		}),
	)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		defer sub.Close()
		b.drain(ctx, sub, out)
	}()
	return out, nil
}

func (b *Broker) drain(ctx context.Context, sub *redis.PubSub, out chan<- []byte) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close releases the underlying Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}
