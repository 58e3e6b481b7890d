package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.BrokerKind)
	assert.Equal(t, int32(30), cfg.ObjectTimeToLive)
	assert.Equal(t, 10, cfg.WorkerPoolSize)
}

func TestLoadRejectsUnknownBrokerKind(t *testing.T) {
	t.Setenv("BROKER_KIND", "carrier-pigeon")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadSplitsKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9092 ,")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.KafkaBrokers)
}
