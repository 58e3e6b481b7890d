// Package kafkabroker implements transport.Broker on top of Kafka, the
// teacher's own broker dependency. Native Kafka consumer groups load-balance
// partitions across group members — the opposite of pub/sub fan-out — so
// every Subscribe call mints its own randomly-suffixed consumer group,
// emulating broadcast delivery the same way a single-partition "fan-out"
// topic would.
package kafkabroker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	"sapphire-kv/internal/observability"
)

const reconnectDelay = 4 * time.Second
const backendName = "kafka"

// Broker is a transport.Broker backed by Kafka topics named after the
// replication channel.
type Broker struct {
	brokers []string
	writer  *kafka.Writer
	logger  *log.Logger
}

// New constructs a Broker writing to and reading from the given broker
// addresses.
func New(brokers []string, logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.New(log.Writer(), "[kafkabroker] ", log.LstdFlags)
	}
	return &Broker{
		brokers: brokers,
		logger:  logger,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish retries with a fixed backoff until ctx is canceled.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	return retry.Do(
		func() error {
			return b.writer.WriteMessages(ctx, kafka.Message{Topic: channel, Value: payload})
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

// Subscribe creates a reader with a unique consumer group so this call sees
// every message on channel regardless of how many other subscribers exist.
// It returns once the reader is constructed (kafka-go dials lazily on first
// read) and closes the returned channel when that one subscription ends;
// callers own the resubscribe loop, matching internal/subscriber's need to
// re-issue request_objects on every (re-)subscribe.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	groupID := fmt.Sprintf("sapphire-%s", uuid.NewString())
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: b.brokers,
		Topic:   channel,
		GroupID: groupID,
	})

	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		defer reader.Close()
		b.drain(ctx, reader, out)
	}()

	return out, nil
}

func (b *Broker) drain(ctx context.Context, reader *kafka.Reader, out chan<- []byte) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				observability.RecordBrokerReconnect(backendName)
				b.logger.Printf("read from %s failed: %v", reader.Config().Topic, err)
			}
			return
		}
		select {
		case out <- msg.Value:
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the underlying writer.
func (b *Broker) Close() error {
	return b.writer.Close()
}
