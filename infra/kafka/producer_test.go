package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestNewProducerWaitsForAllReplicas(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "custody.events")
	defer p.Close()

	require.Equal(t, "custody.events", p.writer.Topic)
	require.Equal(t, kafka.RequireAll, p.writer.RequiredAcks)
	require.False(t, p.writer.Async)
	require.IsType(t, &kafka.Hash{}, p.writer.Balancer)
}

func TestPublishHonoursContext(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "custody.events")
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, p.Publish(ctx, []byte("k"), []byte("v")))
}
