package models

import "time"

// Message types pushed over websocket connections.
const (
	TypeProximityAdvertise = "proximity.advertise"
	TypeProximityStop      = "proximity.stop"
	TypeListenerEvent      = "payment.listener"
)

// StatusUpdate is the frame written to websocket clients.
type StatusUpdate struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Event     string      `json:"event,omitempty"`
	State     string      `json:"state,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
