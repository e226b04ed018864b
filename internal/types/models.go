// internal/types/models.go
package types

import (
	"fmt"
	"time"
)

// EventType is the closed set of observation kinds the engine understands.
type EventType string

const (
	EventCameraAnalysis EventType = "camera_analysis"
	EventChatMessage    EventType = "chat_message"
	EventSensorReading  EventType = "sensor_reading"
	EventActivityLog    EventType = "activity_log"
	EventCustom         EventType = "custom"
)

var eventTypes = map[EventType]bool{
	EventCameraAnalysis: true,
	EventChatMessage:    true,
	EventSensorReading:  true,
	EventActivityLog:    true,
	EventCustom:         true,
}

// ParseEventType validates s against the known event types.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !eventTypes[t] {
		return "", fmt.Errorf("unknown event type: %q", s)
	}
	return t, nil
}

// Event is one timestamped observation. It is never mutated after it has
// been stored.
//
// Data and Metadata are persisted as JSON, so they read back with JSON
// value types: numbers as float64, nested objects as map[string]any.
type Event struct {
	ID           EventID        `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Type         EventType      `json:"event_type"`
	Source       string         `json:"source"`
	SessionID    SessionID      `json:"session_id,omitempty"`
	Content      string         `json:"content,omitempty"`
	NumericValue *float64       `json:"numeric_value,omitempty"`
	Tags         []string       `json:"tags"`
	Data         map[string]any `json:"data"`
	Metadata     map[string]any `json:"metadata"`
}

// NewEvent returns an event with a fresh id and the current UTC time.
func NewEvent(eventType EventType, source string) *Event {
	return &Event{
		ID:        NewEventID(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Source:    source,
		Tags:      []string{},
		Data:      map[string]any{},
		Metadata:  map[string]any{},
	}
}

// Insight is an analysis computed over a window of events.
type Insight struct {
	ID                InsightID      `json:"id"`
	CreatedAt         time.Time      `json:"created_at"`
	TimeWindow        string         `json:"time_window"`
	WindowStart       *time.Time     `json:"window_start,omitempty"`
	WindowEnd         *time.Time     `json:"window_end,omitempty"`
	Summary           string         `json:"summary"`
	Patterns          []string       `json:"patterns"`
	Recommendations   []string       `json:"recommendations"`
	Confidence        float64        `json:"confidence"`
	SourceEventsCount int            `json:"source_events_count"`
	SourceEventIDs    []EventID      `json:"source_event_ids"`
	Metadata          map[string]any `json:"metadata"`
}

// MaxSourceEventIDs caps the provenance sample kept on an insight.
const MaxSourceEventIDs = 100

// NewInsight returns an empty insight for the named window.
func NewInsight(window string) *Insight {
	return &Insight{
		ID:              NewInsightID(),
		CreatedAt:       time.Now().UTC(),
		TimeWindow:      window,
		Patterns:        []string{},
		Recommendations: []string{},
		SourceEventIDs:  []EventID{},
		Metadata:        map[string]any{},
	}
}

// ClampConfidence forces c into [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session groups related events. EventCount is maintained by the store.
type Session struct {
	ID         SessionID     `json:"id"`
	Source     string        `json:"source"`
	Topic      string        `json:"topic,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Status     SessionStatus `json:"status"`
	EventCount int64         `json:"event_count"`
}
