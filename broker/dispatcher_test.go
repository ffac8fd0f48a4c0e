package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/curve/breaker"
	"github.com/baechuer/curve/codec"
	"github.com/baechuer/curve/event"
	"github.com/baechuer/curve/retry"
)

type testPayload struct {
	OrderID string `json:"orderId"`
}

func (testPayload) EventType() string { return "ORDER_CREATED" }

type stubClient struct {
	mu          sync.Mutex
	sent        []sentMsg
	failTopics  map[string]bool
	clusterErr  error
}

type sentMsg struct {
	topic string
	key   string
	value []byte
}

func (c *stubClient) Publish(ctx context.Context, topic, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failTopics[topic] {
		return fmt.Errorf("stub: publish to %s failed", topic)
	}
	c.sent = append(c.sent, sentMsg{topic: topic, key: key, value: value})
	return nil
}

func (c *stubClient) DescribeCluster(ctx context.Context) (string, int, error) {
	if c.clusterErr != nil {
		return "", 0, c.clusterErr
	}
	return "cluster-1", 1, nil
}

func (c *stubClient) Close() error { return nil }

func (c *stubClient) sentTo(topic string) []sentMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentMsg
	for _, m := range c.sent {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func testEnvelope(id uint64) event.Envelope {
	return event.Envelope{
		EventID:    id,
		EventType:  "ORDER_CREATED",
		Severity:   event.SeverityInfo,
		OccurredAt: time.Now().UTC(),
		Payload:    testPayload{OrderID: "o-1"},
	}
}

// noRetryPolicy keeps retries to the minimum retry.Do allows: one retry,
// 1ms later (MaxRetries 0 would mean unbounded retries).
func noRetryPolicy() retry.Policy {
	return retry.Policy{InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxRetries: 1, JitterFraction: 0}
}

func TestDispatcher_BasicPublish_SyncMode(t *testing.T) {
	client := &stubClient{failTopics: map[string]bool{}}
	d := NewDispatcher(Config{Topic: "t1", RetryPolicy: noRetryPolicy()}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())

	err := d.Publish(context.Background(), testEnvelope(42))
	require.NoError(t, err)

	sent := client.sentTo("t1")
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].key)
	assert.Contains(t, string(sent[0].value), `"event_type":"ORDER_CREATED"`)
	assert.Contains(t, string(sent[0].value), `"severity":"INFO"`)
}

func TestDispatcher_DLQFallback_OnDefinitiveMainTopicFailure(t *testing.T) {
	client := &stubClient{failTopics: map[string]bool{"t1": true}}
	d := NewDispatcher(Config{
		Topic: "t1", DLQTopic: "t1.dlq",
		RetryPolicy: noRetryPolicy(),
		DLQWorkers:  2,
	}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())
	defer d.Shutdown()

	err := d.Publish(context.Background(), testEnvelope(7))
	require.NoError(t, err)

	assert.Empty(t, client.sentTo("t1"))
	dlq := client.sentTo("t1.dlq")
	require.Len(t, dlq, 1)
	assert.Contains(t, string(dlq[0].value), `"originalTopic":"t1"`)
	assert.Contains(t, string(dlq[0].value), `"exceptionType":`)
}

func TestDispatcher_BackupFallback_WhenDLQAlsoFails(t *testing.T) {
	dir := t.TempDir()
	client := &stubClient{failTopics: map[string]bool{"t1": true, "t1.dlq": true}}
	d := NewDispatcher(Config{
		Topic: "t1", DLQTopic: "t1.dlq",
		RetryPolicy: noRetryPolicy(),
		BackupDir:   dir,
		DLQWorkers:  2,
	}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())
	defer d.Shutdown()

	err := d.Publish(context.Background(), testEnvelope(99))
	require.NoError(t, err)

	path := filepath.Join(dir, "99.json")
	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	rec, readErr := ReadBackupFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, uint64(99), rec.EventID)
	assert.Equal(t, "t1", rec.OriginalTopic)
}

func TestDispatcher_BackupFailure_ProductionModeSurfacesError(t *testing.T) {
	client := &stubClient{failTopics: map[string]bool{"t1": true}}
	d := NewDispatcher(Config{
		Topic: "t1", // no DLQTopic: straight to Tier 3
		RetryPolicy:  noRetryPolicy(),
		BackupDir:    "", // empty path makes writeBackup fail
		IsProduction: true,
	}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())

	err := d.Publish(context.Background(), testEnvelope(5))
	require.Error(t, err)
}

func TestDispatcher_AsyncMode_DoesNotBlockCaller(t *testing.T) {
	client := &stubClient{failTopics: map[string]bool{}}
	d := NewDispatcher(Config{
		Topic: "t1", AsyncMode: true, AsyncWorkers: 2,
		RetryPolicy: noRetryPolicy(),
	}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())
	defer d.Shutdown()

	err := d.Publish(context.Background(), testEnvelope(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(client.sentTo("t1")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_Health_DownBeforeReady(t *testing.T) {
	client := &stubClient{}
	d := NewDispatcher(Config{Topic: "t1", RetryPolicy: noRetryPolicy()}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())

	status := d.Health(context.Background())
	assert.False(t, status.Up)

	d.SetReady(true)
	status = d.Health(context.Background())
	assert.True(t, status.Up)
	assert.Equal(t, "cluster-1", status.ClusterID)
}

func TestDispatcher_Health_DownWhenClusterUnreachable(t *testing.T) {
	client := &stubClient{clusterErr: errors.New("unreachable")}
	d := NewDispatcher(Config{Topic: "t1", RetryPolicy: noRetryPolicy()}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())
	d.SetReady(true)

	status := d.Health(context.Background())
	assert.False(t, status.Up)
}

type fakeObjectBackup struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (f *fakeObjectBackup) Put(ctx context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = body
	return nil
}

func TestDispatcher_BackupFallback_AlsoWritesObjectBackup(t *testing.T) {
	dir := t.TempDir()
	obj := &fakeObjectBackup{}
	client := &stubClient{failTopics: map[string]bool{"t1": true, "t1.dlq": true}}
	d := NewDispatcher(Config{
		Topic: "t1", DLQTopic: "t1.dlq",
		RetryPolicy:  noRetryPolicy(),
		BackupDir:    dir,
		DLQWorkers:   2,
		ObjectBackup: obj,
	}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())
	defer d.Shutdown()

	require.NoError(t, d.Publish(context.Background(), testEnvelope(42)))

	obj.mu.Lock()
	defer obj.mu.Unlock()
	body, ok := obj.puts["42.json"]
	require.True(t, ok)
	rec, err := unmarshalDLQRecord(body)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rec.EventID)

	_, statErr := os.Stat(filepath.Join(dir, "42.json"))
	require.NoError(t, statErr)
}

func TestDispatcher_BackupFallback_ObjectBackupFailureAloneDoesNotSurface(t *testing.T) {
	dir := t.TempDir()
	obj := &fakeObjectBackup{err: errors.New("s3 unreachable")}
	client := &stubClient{failTopics: map[string]bool{"t1": true}}
	d := NewDispatcher(Config{
		Topic:        "t1",
		RetryPolicy:  noRetryPolicy(),
		BackupDir:    dir,
		IsProduction: true,
		ObjectBackup: obj,
	}, client, codec.NewJSONCodec(nil), nil, zerolog.Nop())
	defer d.Shutdown()

	require.NoError(t, d.Publish(context.Background(), testEnvelope(43)))
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics { return &countingMetrics{errors: map[string]int{}} }

func (m *countingMetrics) IncError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) ObserveCircuitState(state breaker.State) {}

func TestDispatcher_RecordsMetricsOnTerminalFailures(t *testing.T) {
	client := &stubClient{failTopics: map[string]bool{"t1": true, "t1.dlq": true}}
	metrics := newCountingMetrics()
	d := NewDispatcher(Config{
		Topic: "t1", DLQTopic: "t1.dlq",
		RetryPolicy: noRetryPolicy(),
		BackupDir:   t.TempDir(),
		DLQWorkers:  1,
	}, client, codec.NewJSONCodec(nil), metrics, zerolog.Nop())
	defer d.Shutdown()

	require.NoError(t, d.Publish(context.Background(), testEnvelope(3)))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.errors["broker_terminal"])
	assert.Equal(t, 1, metrics.errors["dlq_failure"])
}
