// Package events provides lifecycle notifications for load-generator sessions.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventSessionConnected is emitted when a session's WebSocket dial succeeds
	EventSessionConnected EventType = "session_connected"
	// EventSessionIntroduced is emitted once both introduction messages arrived
	EventSessionIntroduced EventType = "session_introduced"
	// EventSessionFailed is emitted when a session dies before introduction
	EventSessionFailed EventType = "session_failed"
	// EventSessionClosed is emitted when a connected session's stream ends
	EventSessionClosed EventType = "session_closed"
)

// Event represents a session lifecycle event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID int       `json:"session_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Stage     string `json:"stage,omitempty"`
	Handshake string `json:"handshake,omitempty"`
	Drained   uint64 `json:"drained,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewConnectedEvent creates a session connected event
func NewConnectedEvent(id int) Event {
	return Event{
		Type:      EventSessionConnected,
		Timestamp: time.Now(),
		SessionID: id,
	}
}

// NewIntroducedEvent creates a session introduced event
func NewIntroducedEvent(id int, handshake time.Duration) Event {
	return Event{
		Type:      EventSessionIntroduced,
		Timestamp: time.Now(),
		SessionID: id,
		Data: EventData{
			Handshake: handshake.String(),
		},
	}
}

// NewFailedEvent creates a session failed event
func NewFailedEvent(id int, stage string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventSessionFailed,
		Timestamp: time.Now(),
		SessionID: id,
		Data: EventData{
			Stage: stage,
			Error: errMsg,
		},
	}
}

// NewClosedEvent creates a session closed event
func NewClosedEvent(id int, drained uint64) Event {
	return Event{
		Type:      EventSessionClosed,
		Timestamp: time.Now(),
		SessionID: id,
		Data: EventData{
			Drained: drained,
		},
	}
}
