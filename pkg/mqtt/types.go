package mqtt

import (
	"context"
)

// Client is the publishing side of an MQTT connection.
// It hides the paho autopaho connection manager.
type Client interface {
	// Start initiates the connection to the broker.
	// It is non-blocking; reconnection happens in the background.
	Start(ctx context.Context) error

	// Disconnect cleanly closes the connection.
	Disconnect(ctx context.Context)

	// Publish sends a message to the specified topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// IsConnected returns true if the client currently holds a broker connection.
	IsConnected() bool
}
