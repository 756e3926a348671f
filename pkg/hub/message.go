// Package hub fans status events out to websocket subscribers.
package hub

import (
	"encoding/json"
	"time"
)

// Event types published on the status stream.
const (
	EventRecorderState     = "recorder.state"
	EventRecordingStopped  = "recording.stopped"
	EventConnectionState   = "avatar.connection"
	EventConversationState = "avatar.conversation"
)

// Event is one status update delivered to subscribers as a JSON text frame.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Time: time.Now(), Data: data}
}

// message is an encoded event queued for delivery.
type message struct {
	eventType string
	data      []byte
}

func encode(e Event) (message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return message{}, err
	}
	return message{eventType: e.Type, data: data}, nil
}
