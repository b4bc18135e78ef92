// Package events defines call events and the publishers that emit them.
package events

// CallEvent is emitted once per dispatched inbound request.
type CallEvent struct {
	Connector  string `json:"connector,omitempty"`
	Method     string `json:"method"`
	Session    string `json:"session,omitempty"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}

// OK is the Outcome of a request that produced a value.
const OK = "OK"
