package core

// LoopbackHost is the only host a head-unit proxy is looked for on.
const LoopbackHost = "127.0.0.1"

// ConnectionState is the process-wide view of the head-unit connection.
// The zero value is the disconnected state.
type ConnectionState struct {
	Connected bool   `json:"connected"`
	Brand     Brand  `json:"brand,omitempty"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
}
