package core

// EventType names an outbound event.
type EventType string

const (
	EventProbeDiscovered EventType = "probe_discovered"
	EventProbeFailure    EventType = "probe_failure"
	EventConnectionSet   EventType = "connection_set"
	EventConnectionReset EventType = "connection_reset"
)

// EventSink receives probe results. Calls arrive on the prober goroutine and
// must not block.
type EventSink interface {
	ProbeDiscovered(port int, vehicleType, hmiType string)
	ProbeFailure(port int, message string, cause error)
}

// Sinks fans an event out to several sinks in order.
type Sinks []EventSink

func (s Sinks) ProbeDiscovered(port int, vehicleType, hmiType string) {
	for _, sink := range s {
		sink.ProbeDiscovered(port, vehicleType, hmiType)
	}
}

func (s Sinks) ProbeFailure(port int, message string, cause error) {
	for _, sink := range s {
		sink.ProbeFailure(port, message, cause)
	}
}
