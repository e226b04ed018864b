// internal/types/models_test.go
package types

import (
	"encoding/json"
	"testing"
)

func TestParseEventType(t *testing.T) {
	for _, s := range []string{"camera_analysis", "chat_message", "sensor_reading", "activity_log", "custom"} {
		if _, err := ParseEventType(s); err != nil {
			t.Errorf("expected %q to parse: %v", s, err)
		}
	}
	if _, err := ParseEventType("meal"); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestNewEventDefaults(t *testing.T) {
	e := NewEvent(EventSensorReading, "scale")
	if e.ID == "" {
		t.Error("expected id to be assigned")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be assigned")
	}
	if e.Timestamp.Location().String() != "UTC" {
		t.Errorf("expected UTC timestamp, got %s", e.Timestamp.Location())
	}
	if e.Tags == nil || e.Data == nil || e.Metadata == nil {
		t.Error("expected non-nil collections")
	}
}

func TestEventSerialization(t *testing.T) {
	v := 42.5
	event := NewEvent(EventSensorReading, "scale")
	event.NumericValue = &v
	event.Tags = []string{"meal", "lunch"}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != EventSensorReading {
		t.Errorf("expected type %s, got %s", EventSensorReading, decoded.Type)
	}
	if decoded.NumericValue == nil || *decoded.NumericValue != v {
		t.Errorf("expected numeric value %v, got %v", v, decoded.NumericValue)
	}
}

func TestClampConfidence(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0.3: 0.3, 1.7: 1}
	for in, want := range cases {
		if got := ClampConfidence(in); got != want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}
