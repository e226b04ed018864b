// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type EventID string
type InsightID string
type SessionID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewInsightID() InsightID {
	return InsightID(uuid.New().String())
}

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}
