package chatlink

import "time"

// ConnState represents the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// Snapshot is a point-in-time, read-only view of client state, intended for
// a UI layer to render. The queue and thread contents are copies; mutating
// them has no effect on the client.
type Snapshot struct {
	Status             ConnState              `json:"status"`
	ReconnectAttempts  int                    `json:"reconnectAttempts"`
	LastConnectionTime time.Time              `json:"lastConnectionTime"`
	MessageQueue       []QueuedMessage        `json:"messageQueue"`
	Threads            map[string]ThreadState `json:"conversationThreads"`
}
