package curve

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/curve/config"
	"github.com/baechuer/curve/event"
	"github.com/baechuer/curve/outbox"
)

type stubBrokerClient struct {
	published []string
}

func (c *stubBrokerClient) Publish(ctx context.Context, topic, key string, value []byte) error {
	c.published = append(c.published, topic)
	return nil
}

func (c *stubBrokerClient) DescribeCluster(ctx context.Context) (string, int, error) {
	return "stub-cluster", 1, nil
}

func (c *stubBrokerClient) Close() error { return nil }

type orderPlaced struct {
	OrderID string `json:"orderId"`
}

func (orderPlaced) EventType() string { return "ORDER_PLACED" }

func testConfig() *config.Config {
	return &config.Config{
		Enabled: true,
		Kafka: config.KafkaConfig{
			BrokerURL: "amqp://stub",
			Exchange:  "curve.events",
			Topic:     "orders",
		},
		Retry: config.RetryConfig{
			MaxAttempts:     1,
			InitialInterval: 1,
			Multiplier:      1,
			MaxInterval:     1,
		},
		Serde: config.SerdeConfig{Type: config.SerdeJSON},
	}
}

func TestNewWithClient_WiresAssemblerCodecAndDispatcher(t *testing.T) {
	client := &stubBrokerClient{}
	c, err := NewWithClient(context.Background(), testConfig(), nil, prometheus.NewRegistry(), client, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Assembler)
	assert.NotNil(t, c.Codec)
	assert.NotNil(t, c.Dispatcher)
	assert.Nil(t, c.OutboxPublisher, "outbox is disabled by testConfig")
	assert.True(t, c.Dispatcher.Ready())
}

func TestPublish_AssemblesAndDispatchesThroughTheBroker(t *testing.T) {
	client := &stubBrokerClient{}
	c, err := NewWithClient(context.Background(), testConfig(), nil, prometheus.NewRegistry(), client, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	err = c.Publish(context.Background(), orderPlaced{OrderID: "o-1"}, event.SeverityInfo)
	require.NoError(t, err)

	require.Len(t, client.published, 1)
	assert.Equal(t, "orders", client.published[0])
}

func TestSave_ErrorsWhenOutboxNotEnabled(t *testing.T) {
	client := &stubBrokerClient{}
	c, err := NewWithClient(context.Background(), testConfig(), nil, prometheus.NewRegistry(), client, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	err = c.Save(context.Background(), outbox.Record{ID: 1})
	assert.Error(t, err)
}
