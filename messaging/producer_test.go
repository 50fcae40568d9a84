package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"kafka", "Redis", "JETSTREAM"} {
		producer, err := NewProducer(name)
		require.NoError(t, err, name)
		assert.True(t, IsProducer(producer.String()))
	}

	_, err := NewProducer("stan")
	assert.ErrorIs(t, err, ErrUnknownProducer)
	assert.False(t, IsProducer("stan"))
}

func TestGetEntry(t *testing.T) {
	t.Parallel()

	args := map[string]interface{}{
		"address": "localhost:6379",
		"DB":      2,
		"Async":   true,
	}

	assert.Equal(t, "localhost:6379", GetEntry(args, "Address"))

	db, ok := getString(args, "db")
	assert.True(t, ok)
	assert.Equal(t, "2", db)

	async, ok := getString(args, "async")
	assert.True(t, ok)
	assert.True(t, mustParseBool(async))

	_, ok = getString(args, "Password")
	assert.False(t, ok)
}

func TestKafkaConnectRequiresAddress(t *testing.T) {
	t.Parallel()

	producer := &KafkaProducer{}

	err := producer.Connect(context.Background(), "test", map[string]interface{}{"Channel": "sandwich"})
	assert.Error(t, err)

	assert.ErrorIs(t, producer.Publish(context.Background(), "READY", nil), ErrNotConnected)
	assert.NoError(t, producer.Close())
}

func TestKafkaConnect(t *testing.T) {
	t.Parallel()

	producer := &KafkaProducer{}

	err := producer.Connect(context.Background(), "test", map[string]interface{}{
		"Address":  "localhost:9092",
		"Channel":  "sandwich",
		"Balancer": "roundrobin",
	})
	require.NoError(t, err)

	assert.Equal(t, "sandwich", producer.Channel())
	assert.NotNil(t, producer.writer.Balancer)
	assert.NoError(t, producer.Close())
}
