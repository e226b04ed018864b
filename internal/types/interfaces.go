// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// EventFilter narrows an event query. Zero-valued fields impose no constraint;
// a zero End means "now" and a zero Limit means DefaultEventLimit.
type EventFilter struct {
	Start     time.Time
	End       time.Time
	Types     []EventType
	Sources   []string
	SessionID SessionID
	Limit     int
}

// InsightFilter narrows an insight history query.
type InsightFilter struct {
	Since  time.Time
	Window string
	Limit  int
}

const (
	DefaultEventLimit   = 1000
	DefaultInsightLimit = 100
)

type GroupBy string

const (
	GroupByHour GroupBy = "hour"
	GroupByDay  GroupBy = "day"
)

// Aggregate holds grouped counts computed by the store.
type Aggregate struct {
	Total     int64            `json:"total"`
	ByTime    map[string]int64 `json:"by_time"`
	ByType    map[string]int64 `json:"by_type"`
	BySource  map[string]int64 `json:"by_source"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
}

type EventStore interface {
	Init(ctx context.Context) error
	Close() error
	StoreEvent(ctx context.Context, event *Event) (EventID, error)
	StoreEvents(ctx context.Context, events []*Event) ([]EventID, error)
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
	AggregateEvents(ctx context.Context, start, end time.Time, groupBy GroupBy) (*Aggregate, error)
}

type InsightStore interface {
	StoreInsight(ctx context.Context, insight *Insight) (InsightID, error)
	GetInsights(ctx context.Context, filter InsightFilter) ([]*Insight, error)
}

type SessionStore interface {
	StartSession(ctx context.Context, source, topic string) (SessionID, error)
	EndSession(ctx context.Context, id SessionID) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
}

// Store is the full durable surface the engine depends on.
type Store interface {
	EventStore
	InsightStore
	SessionStore
}
