// internal/state/event.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/user/insightflow/internal/types"
)

// StoreEvent inserts one event. When the event references a session, the
// session's event_count is incremented in the same transaction.
func (s *Store) StoreEvent(ctx context.Context, event *types.Event) (types.EventID, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return "", err
	}

	tags, err := marshalJSON(nonNilTags(event.Tags))
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	data, err := marshalJSON(nonNilMap(event.Data))
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	meta, err := marshalJSON(nonNilMap(event.Metadata))
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	var numeric sql.NullFloat64
	if event.NumericValue != nil {
		numeric = sql.NullFloat64{Float64: *event.NumericValue, Valid: true}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", storageErr("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, ts, event_type, source, session_id, content, numeric_value, tags, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(event.ID),
		toNanos(event.Timestamp),
		string(event.Type),
		event.Source,
		nullString(string(event.SessionID)),
		nullString(event.Content),
		numeric,
		tags, data, meta,
	)
	if err != nil {
		return "", storageErr("insert event", err)
	}

	if event.SessionID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET event_count = event_count + 1 WHERE id = ?`,
			string(event.SessionID),
		); err != nil {
			return "", storageErr("increment session", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", storageErr("commit", err)
	}
	return event.ID, nil
}

// StoreEvents stores events one by one. A failure leaves the already stored
// prefix committed and returns its ids along with the error.
func (s *Store) StoreEvents(ctx context.Context, events []*types.Event) ([]types.EventID, error) {
	ids := make([]types.EventID, 0, len(events))
	for _, e := range events {
		id, err := s.StoreEvent(ctx, e)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetEvents returns events with timestamps in [filter.Start, filter.End],
// newest first.
func (s *Store) GetEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	end := filter.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = types.DefaultEventLimit
	}

	query := `SELECT id, ts, event_type, source, session_id, content, numeric_value, tags, data, metadata
		FROM events WHERE ts >= ? AND ts <= ?`
	args := []any{lowerNanos(filter.Start), toNanos(end)}

	if len(filter.Types) > 0 {
		query += " AND event_type IN (" + placeholders(len(filter.Types)) + ")"
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if len(filter.Sources) > 0 {
		query += " AND source IN (" + placeholders(len(filter.Sources)) + ")"
		for _, src := range filter.Sources {
			args = append(args, src)
		}
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, string(filter.SessionID))
	}
	query += " ORDER BY ts DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query events", err)
	}
	defer rows.Close()

	events := []*types.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate events", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*types.Event, error) {
	var (
		id, eventType, source     string
		ts                        int64
		sessionID, content        sql.NullString
		numeric                   sql.NullFloat64
		tagsCol, dataCol, metaCol sql.NullString
	)
	if err := rows.Scan(&id, &ts, &eventType, &source, &sessionID, &content, &numeric, &tagsCol, &dataCol, &metaCol); err != nil {
		return nil, storageErr("scan event", err)
	}

	e := &types.Event{
		ID:        types.EventID(id),
		Timestamp: fromNanos(ts),
		Type:      types.EventType(eventType),
		Source:    source,
		SessionID: types.SessionID(sessionID.String),
		Content:   content.String,
		Tags:      []string{},
		Data:      map[string]any{},
		Metadata:  map[string]any{},
	}
	if numeric.Valid {
		v := numeric.Float64
		e.NumericValue = &v
	}
	if err := unmarshalJSON(tagsCol, &e.Tags); err != nil {
		return nil, storageErr("decode tags", err)
	}
	if err := unmarshalJSON(dataCol, &e.Data); err != nil {
		return nil, storageErr("decode data", err)
	}
	if err := unmarshalJSON(metaCol, &e.Metadata); err != nil {
		return nil, storageErr("decode metadata", err)
	}
	return e, nil
}

const (
	hourKeyFormat = "2006-01-02 15:00"
	dayKeyFormat  = "2006-01-02"
)

// AggregateEvents computes grouped counts over [start, end] inside the
// database without loading full records.
func (s *Store) AggregateEvents(ctx context.Context, start, end time.Time, groupBy types.GroupBy) (*types.Aggregate, error) {
	var bucket time.Duration
	var keyFormat string
	switch groupBy {
	case types.GroupByHour, "":
		bucket, keyFormat = time.Hour, hourKeyFormat
	case types.GroupByDay:
		bucket, keyFormat = 24*time.Hour, dayKeyFormat
	default:
		return nil, fmt.Errorf("unsupported group by: %q", groupBy)
	}

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT (ts / ?) * ? AS bucket, event_type, source, COUNT(*)
		FROM events
		WHERE ts >= ? AND ts <= ?
		GROUP BY bucket, event_type, source
		ORDER BY bucket`,
		int64(bucket), int64(bucket), lowerNanos(start), toNanos(end),
	)
	if err != nil {
		return nil, storageErr("aggregate events", err)
	}
	defer rows.Close()

	agg := &types.Aggregate{
		ByTime:    map[string]int64{},
		ByType:    map[string]int64{},
		BySource:  map[string]int64{},
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
	}
	for rows.Next() {
		var (
			b              int64
			eventType, src string
			count          int64
		)
		if err := rows.Scan(&b, &eventType, &src, &count); err != nil {
			return nil, storageErr("scan aggregate", err)
		}
		agg.ByTime[fromNanos(b).Format(keyFormat)] += count
		agg.ByType[eventType] += count
		agg.BySource[src] += count
		agg.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate aggregate", err)
	}
	return agg, nil
}

// lowerNanos maps the zero time to the smallest bound so an unset start
// matches everything.
func lowerNanos(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return toNanos(t)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
