// Package notifier forwards probe results and connection transitions to an
// MQTT broker.
package notifier

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/pkg/log"
	pkgmqtt "github.com/autopeer-io/carprober/pkg/mqtt"
	"github.com/autopeer-io/carprober/pkg/mqtt/topic"
)

const (
	eventQoS       = 1
	publishTimeout = 5 * time.Second
)

type message struct {
	topic   string
	retain  bool
	payload []byte
}

// MQTTNotifier is a core.EventSink and a registry listener. Both paths only
// enqueue; Run publishes from its own goroutine so the prober never waits on
// the broker.
type MQTTNotifier struct {
	client   pkgmqtt.Client
	topics   *topic.Builder
	deviceID string
	clock    clock.PassiveClock

	queue   chan message
	dropped atomic.Int64
}

var _ core.EventSink = (*MQTTNotifier)(nil)

// Option customizes an MQTTNotifier.
type Option func(*MQTTNotifier)

// WithClock sets the clock used for event timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(n *MQTTNotifier) { n.clock = c }
}

func NewMQTTNotifier(client pkgmqtt.Client, topics *topic.Builder, deviceID string, queueSize int, opts ...Option) *MQTTNotifier {
	if queueSize <= 0 {
		queueSize = 1
	}
	n := &MQTTNotifier{
		client:   client,
		topics:   topics,
		deviceID: deviceID,
		clock:    clock.RealClock{},
		queue:    make(chan message, queueSize),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// ConnectionWill returns the topic and payload to register as the client's
// last will, so subscribers see the device go offline if the process dies.
func ConnectionWill(topics *topic.Builder, deviceID string) (string, []byte, error) {
	payload, err := encode(map[string]any{
		"event":     string(core.EventConnectionReset),
		"device":    deviceID,
		"connected": false,
		"reason":    "offline",
	})
	if err != nil {
		return "", nil, err
	}
	return topics.Build(topic.Connection, deviceID), payload, nil
}

func (n *MQTTNotifier) ProbeDiscovered(port int, vehicleType, hmiType string) {
	n.enqueue(topic.ProbeDiscovered, false, map[string]any{
		"event":       string(core.EventProbeDiscovered),
		"port":        port,
		"vehicleType": vehicleType,
		"hmiType":     hmiType,
	})
}

func (n *MQTTNotifier) ProbeFailure(port int, message string, cause error) {
	fields := map[string]any{
		"event":   string(core.EventProbeFailure),
		"port":    port,
		"message": message,
	}
	if cause != nil {
		fields["cause"] = cause.Error()
	}
	n.enqueue(topic.ProbeFailure, false, fields)
}

// OnConnection publishes a registry transition as a retained message.
func (n *MQTTNotifier) OnConnection(state core.ConnectionState) {
	if !state.Connected {
		n.enqueue(topic.Connection, true, map[string]any{
			"event":     string(core.EventConnectionReset),
			"connected": false,
		})
		return
	}
	n.enqueue(topic.Connection, true, map[string]any{
		"event":     string(core.EventConnectionSet),
		"connected": true,
		"brand":     string(state.Brand),
		"host":      state.Host,
		"port":      state.Port,
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (n *MQTTNotifier) Dropped() int64 {
	return n.dropped.Load()
}

func (n *MQTTNotifier) enqueue(segment string, retain bool, fields map[string]any) {
	fields["device"] = n.deviceID
	fields["timestamp"] = n.clock.Now().UTC().Format(time.RFC3339Nano)

	payload, err := encode(fields)
	if err != nil {
		log.Error(err, "Failed to encode event", "topic", segment)
		return
	}

	msg := message{topic: n.topics.Build(segment, n.deviceID), retain: retain, payload: payload}
	select {
	case n.queue <- msg:
	default:
		n.dropped.Add(1)
		log.Warn("Event queue full, dropping event", "topic", msg.topic)
	}
}

// Run connects the client and publishes queued events until ctx is done.
// Events still queued at that point are flushed before disconnecting, so the
// final connection_reset reaches the broker.
func (n *MQTTNotifier) Run(ctx context.Context) error {
	// The connection must outlive ctx long enough to flush, so it is only
	// closed by the Disconnect in drain. Each publish is bounded by
	// publishTimeout instead.
	pctx := context.WithoutCancel(ctx)
	if err := n.client.Start(pctx); err != nil {
		return fmt.Errorf("start mqtt client: %w", err)
	}

	for {
		if ctx.Err() != nil {
			n.drain(pctx)
			return nil
		}
		select {
		case <-ctx.Done():
		case msg := <-n.queue:
			n.publish(pctx, msg)
		}
	}
}

func (n *MQTTNotifier) drain(ctx context.Context) {
	defer func() {
		dctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		n.client.Disconnect(dctx)
	}()

	// Publishing waits for a reconnect, which would stall shutdown once per event.
	if !n.client.IsConnected() {
		if pending := len(n.queue); pending > 0 {
			n.dropped.Add(int64(pending))
			log.Warn("Broker unreachable, dropping queued events on shutdown", "count", pending)
		}
		return
	}

	for {
		select {
		case msg := <-n.queue:
			n.publish(ctx, msg)
		default:
			return
		}
	}
}

func (n *MQTTNotifier) publish(ctx context.Context, msg message) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.client.Publish(pctx, msg.topic, eventQoS, msg.retain, msg.payload); err != nil {
		log.Warn("Failed to publish event", "topic", msg.topic, "error", err)
	}
}

func encode(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}
