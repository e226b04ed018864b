// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewEventID(t *testing.T) {
	id := NewEventID()
	if id == "" {
		t.Error("expected non-empty EventID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestIDsAreUnique(t *testing.T) {
	if NewInsightID() == NewInsightID() {
		t.Error("expected distinct insight ids")
	}
	if NewSessionID() == NewSessionID() {
		t.Error("expected distinct session ids")
	}
}
