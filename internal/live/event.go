// Package live fans out domain events to connected dashboards over Redis
// pub/sub and renders them as server-sent events.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// EventType names a live update.
type EventType string

const (
	EventNewIssuance EventType = "new_issuance"
	EventReturned    EventType = "returned"
	EventHeartbeat   EventType = "heartbeat"
)

// Event is the envelope pushed to live subscribers.
type Event struct {
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent marshals payload into an event envelope.
func NewEvent(eventType EventType, payload any, at time.Time) (Event, error) {
	evt := Event{Type: eventType, OccurredAt: at.UTC()}
	if payload == nil {
		return evt, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	evt.Payload = raw
	return evt, nil
}

// Broadcaster publishes events to every live subscriber.
type Broadcaster interface {
	Publish(ctx context.Context, evt Event) error
}

// WriteSSE renders one event in text/event-stream framing.
func WriteSSE(w io.Writer, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
	return err
}
