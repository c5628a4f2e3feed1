// Package events publishes mutation notifications to an AMQP broker so
// other consumers (dashboards, exporters) can react without polling the
// endpoint. Publishing is optional and best effort.
package events

import (
	"encoding/json"
	"time"
)

// Event announces one committed mutation. Consumers re-fetch the data they
// need; the event carries only what happened and to which record.
type Event struct {
	Entity    string    `json:"entity"`
	Op        string    `json:"op"`
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(entity, op, id string) *Event {
	return &Event{
		Entity:    entity,
		Op:        op,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON creates an event from JSON bytes
func EventFromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
