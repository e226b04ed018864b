package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/insightflow/internal/types"
)

// StoreInsight persists an insight. At most types.MaxSourceEventIDs source
// event ids are kept.
func (s *Store) StoreInsight(ctx context.Context, insight *types.Insight) (types.InsightID, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return "", err
	}

	ids := insight.SourceEventIDs
	if ids == nil {
		ids = []types.EventID{}
	}
	if len(ids) > types.MaxSourceEventIDs {
		ids = ids[:types.MaxSourceEventIDs]
	}

	patterns, err := marshalJSON(nonNilTags(insight.Patterns))
	if err != nil {
		return "", fmt.Errorf("marshal patterns: %w", err)
	}
	recs, err := marshalJSON(nonNilTags(insight.Recommendations))
	if err != nil {
		return "", fmt.Errorf("marshal recommendations: %w", err)
	}
	idsJSON, err := marshalJSON(ids)
	if err != nil {
		return "", fmt.Errorf("marshal source ids: %w", err)
	}
	meta, err := marshalJSON(nonNilMap(insight.Metadata))
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO insights (id, created_at, time_window, window_start, window_end, summary,
			patterns, recommendations, confidence, source_events_count, source_event_ids, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(insight.ID),
		toNanos(insight.CreatedAt),
		insight.TimeWindow,
		nullNanos(insight.WindowStart),
		nullNanos(insight.WindowEnd),
		insight.Summary,
		patterns, recs,
		insight.Confidence,
		insight.SourceEventsCount,
		idsJSON, meta,
	)
	if err != nil {
		return "", storageErr("insert insight", err)
	}
	return insight.ID, nil
}

// GetInsights returns stored insights, newest first.
func (s *Store) GetInsights(ctx context.Context, filter types.InsightFilter) ([]*types.Insight, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = types.DefaultInsightLimit
	}

	query := `SELECT id, created_at, time_window, window_start, window_end, summary,
		patterns, recommendations, confidence, source_events_count, source_event_ids, metadata
		FROM insights WHERE 1=1`
	var args []any
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, toNanos(filter.Since))
	}
	if filter.Window != "" {
		query += " AND time_window = ?"
		args = append(args, filter.Window)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query insights", err)
	}
	defer rows.Close()

	insights := []*types.Insight{}
	for rows.Next() {
		var (
			id, window, summary          string
			createdAt                    int64
			windowStart, windowEnd       sql.NullInt64
			patterns, recs, ids, metaCol sql.NullString
			confidence                   sql.NullFloat64
			count                        sql.NullInt64
		)
		if err := rows.Scan(&id, &createdAt, &window, &windowStart, &windowEnd, &summary,
			&patterns, &recs, &confidence, &count, &ids, &metaCol); err != nil {
			return nil, storageErr("scan insight", err)
		}

		in := &types.Insight{
			ID:                types.InsightID(id),
			CreatedAt:         fromNanos(createdAt),
			TimeWindow:        window,
			WindowStart:       timePtr(windowStart),
			WindowEnd:         timePtr(windowEnd),
			Summary:           summary,
			Patterns:          []string{},
			Recommendations:   []string{},
			Confidence:        confidence.Float64,
			SourceEventsCount: int(count.Int64),
			SourceEventIDs:    []types.EventID{},
			Metadata:          map[string]any{},
		}
		if err := unmarshalJSON(patterns, &in.Patterns); err != nil {
			return nil, storageErr("decode patterns", err)
		}
		if err := unmarshalJSON(recs, &in.Recommendations); err != nil {
			return nil, storageErr("decode recommendations", err)
		}
		if err := unmarshalJSON(ids, &in.SourceEventIDs); err != nil {
			return nil, storageErr("decode source ids", err)
		}
		if err := unmarshalJSON(metaCol, &in.Metadata); err != nil {
			return nil, storageErr("decode metadata", err)
		}
		insights = append(insights, in)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate insights", err)
	}
	return insights, nil
}
