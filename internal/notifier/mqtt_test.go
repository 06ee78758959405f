package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/pkg/mqtt/topic"
)

type published struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	started      bool
	disconnected bool
	startErr     error
	offline      bool
	messages     []published
}

func (c *fakeClient) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return c.startErr
}

func (c *fakeClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retain, payload})
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.offline
}

func (c *fakeClient) published() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func decode(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var s structpb.Struct
	require.NoError(t, protojson.Unmarshal(payload, &s))
	return s.AsMap()
}

func newTestNotifier(client *fakeClient, size int) *MQTTNotifier {
	return NewMQTTNotifier(client, topic.NewBuilder("carprober/v1"), "car-1", size,
		WithClock(testingclock.NewFakePassiveClock(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))))
}

func TestPublishesEvents(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	n.ProbeDiscovered(4005, "F22", "BMW_ID5")
	n.ProbeFailure(4004, "bad sig", errors.New("mini handshake failed: bad sig"))
	n.OnConnection(core.ConnectionState{Connected: true, Brand: core.BrandBMW, Host: core.LoopbackHost, Port: 4005})
	n.OnConnection(core.ConnectionState{})

	require.Eventually(t, func() bool { return len(client.published()) == 4 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	msgs := client.published()

	assert.Equal(t, "carprober/v1/probe/discovered/car-1", msgs[0].topic)
	assert.False(t, msgs[0].retain)
	assert.Equal(t, 1, msgs[0].qos)
	assert.Equal(t, map[string]any{
		"event":       "probe_discovered",
		"device":      "car-1",
		"port":        float64(4005),
		"vehicleType": "F22",
		"hmiType":     "BMW_ID5",
		"timestamp":   "2025-01-02T03:04:05Z",
	}, decode(t, msgs[0].payload))

	assert.Equal(t, "carprober/v1/probe/failure/car-1", msgs[1].topic)
	failure := decode(t, msgs[1].payload)
	assert.Equal(t, "bad sig", failure["message"])
	assert.Equal(t, "mini handshake failed: bad sig", failure["cause"])

	assert.Equal(t, "carprober/v1/connection/car-1", msgs[2].topic)
	assert.True(t, msgs[2].retain)
	set := decode(t, msgs[2].payload)
	assert.Equal(t, "connection_set", set["event"])
	assert.Equal(t, "bmw", set["brand"])
	assert.Equal(t, "127.0.0.1", set["host"])

	reset := decode(t, msgs[3].payload)
	assert.Equal(t, "connection_reset", reset["event"])
	assert.Equal(t, false, reset["connected"])

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.started)
	assert.True(t, client.disconnected)
}

func TestRunFlushesQueueOnShutdown(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client, 8)

	n.OnConnection(core.ConnectionState{Connected: true, Brand: core.BrandBMW, Host: core.LoopbackHost, Port: 4005})
	n.ProbeDiscovered(4005, "F22", "BMW_ID5")
	n.OnConnection(core.ConnectionState{})

	// Already cancelled: Run must still publish everything queued before it returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, n.Run(ctx))

	msgs := client.published()
	require.Len(t, msgs, 3)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "carprober/v1/connection/car-1", last.topic)
	assert.True(t, last.retain)
	assert.Equal(t, false, decode(t, last.payload)["connected"])

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.disconnected)
}

func TestRunSkipsFlushWhenOffline(t *testing.T) {
	client := &fakeClient{offline: true}
	n := newTestNotifier(client, 8)

	n.OnConnection(core.ConnectionState{})
	n.ProbeFailure(4004, "bad sig", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, n.Run(ctx))

	assert.Empty(t, client.published())
	assert.Equal(t, int64(2), n.Dropped())
}

func TestQueueOverflowDrops(t *testing.T) {
	client := &fakeClient{}
	n := newTestNotifier(client, 2)

	for i := 0; i < 5; i++ {
		n.ProbeDiscovered(4004+i, "F22", "BMW_ID5")
	}

	assert.Equal(t, int64(3), n.Dropped())
	assert.Len(t, n.queue, 2)
	assert.Empty(t, client.published())
}

func TestRunStartError(t *testing.T) {
	client := &fakeClient{startErr: errors.New("no route")}
	n := newTestNotifier(client, 1)

	err := n.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route")
}

func TestConnectionWill(t *testing.T) {
	topicName, payload, err := ConnectionWill(topic.NewBuilder("/carprober/v1/"), "car-1")
	require.NoError(t, err)

	assert.Equal(t, "carprober/v1/connection/car-1", topicName)
	assert.Equal(t, map[string]any{
		"event":     "connection_reset",
		"device":    "car-1",
		"connected": false,
		"reason":    "offline",
	}, decode(t, payload))
}
