package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the background stream
const (
	EventContactAdded   = "contact_added"
	EventEmailRequested = "email_requested"
)

// Stream names
const (
	StreamEvents = "stream:roaia"
)

// Consumer group name for background workers
const (
	ConsumerGroupEvents = "roaia_workers"
)

// Event is a unit of deferred work published to the stream.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	// ContactAdded
	GlassesID   string `json:"glasses_id,omitempty"`
	ContactName string `json:"contact_name,omitempty"`

	// EmailRequested
	To       string `json:"to,omitempty"`
	Subject  string `json:"subject,omitempty"`
	HTMLBody string `json:"html_body,omitempty"`
}

// NewContactAddedEvent asks a worker to notify the wearer's devices about a new contact.
func NewContactAddedEvent(glassesID, contactName string) Event {
	return Event{
		Type:        EventContactAdded,
		Timestamp:   time.Now().Unix(),
		GlassesID:   glassesID,
		ContactName: contactName,
	}
}

// NewEmailRequestedEvent asks a worker to deliver an HTML email.
func NewEmailRequestedEvent(to, subject, htmlBody string) Event {
	return Event{
		Type:      EventEmailRequested,
		Timestamp: time.Now().Unix(),
		To:        to,
		Subject:   subject,
		HTMLBody:  htmlBody,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e Event) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseEvent parses an Event from Redis stream message values.
func ParseEvent(values map[string]interface{}) (Event, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
