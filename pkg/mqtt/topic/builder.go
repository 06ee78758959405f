package topic

import (
	"fmt"
	"strings"
)

// Topic segments published by the car prober. These are the contract with
// whatever consumes the events; renaming one breaks existing subscribers.
const (
	// ProbeDiscovered carries a successful handshake.
	// Pattern: {root}/probe/discovered/{deviceID}
	ProbeDiscovered = "probe/discovered"

	// ProbeFailure carries the last error after every brand failed on an open port.
	// Pattern: {root}/probe/failure/{deviceID}
	ProbeFailure = "probe/failure"

	// Connection carries the retained connection state, also used as the last will.
	// Pattern: {root}/connection/{deviceID}
	Connection = "connection"
)

// Wildcard is the single-level MQTT wildcard.
const Wildcard = "+"

// Builder constructs topic strings under a fixed root.
type Builder struct {
	root string
}

// NewBuilder returns a Builder rooted at root. Surrounding slashes are trimmed.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, "/")}
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// Wildcard returns the subscription filter matching segment for every device.
func (b *Builder) Wildcard(segment string) string {
	return b.Build(segment, Wildcard)
}
