package events

import "time"

// Event is a notable change in risk or driving state
type Event struct {
	EventType string                 `json:"event_type"`
	Status    string                 `json:"status,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// BufferedEvent wraps an Event with retry metadata for persistence
type BufferedEvent struct {
	Event   Event `json:"event"`
	Retries int   `json:"retries"`
}

// NewEvent creates an event stamped with at
func NewEvent(eventType string, status string, data map[string]interface{}, at time.Time) Event {
	return Event{
		EventType: eventType,
		Status:    status,
		Data:      data,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// Event types
const (
	EventTypeRiskHigh      = "risk_high"      // label transitioned into high
	EventTypeRiskChange    = "risk_change"    // label differs from the previous fetch
	EventTypeDrivingChange = "driving_change" // driving gate flipped
	EventTypeConnect       = "connect"
	EventTypeDisconnect    = "disconnect"
)

// Status constants
const (
	StatusTriggered = "triggered"
	StatusCleared   = "cleared"
	StatusStarted   = "started"
	StatusStopped   = "stopped"
)
