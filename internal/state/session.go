// internal/state/session.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/insightflow/internal/types"
)

// StartSession creates an active session and returns its id.
func (s *Store) StartSession(ctx context.Context, source, topic string) (types.SessionID, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return "", err
	}

	id := types.NewSessionID()
	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, topic, started_at, status, event_count) VALUES (?, ?, ?, ?, ?, 0)`,
		string(id), source, nullString(topic), toNanos(time.Now()), string(types.SessionActive),
	)
	if err != nil {
		return "", storageErr("insert session", err)
	}
	return id, nil
}

// EndSession marks a session ended and stamps its end time. Ending an
// already ended session refreshes the end time.
func (s *Store) EndSession(ctx context.Context, id types.SessionID) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, status = ? WHERE id = ?`,
		toNanos(time.Now()), string(types.SessionEnded), string(id),
	)
	if err != nil {
		return storageErr("end session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("end session", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id types.SessionID) (*types.Session, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	var (
		source, status string
		topic          sql.NullString
		startedAt      int64
		endedAt        sql.NullInt64
		count          int64
	)
	err = db.QueryRowContext(ctx,
		`SELECT source, topic, started_at, ended_at, status, event_count FROM sessions WHERE id = ?`,
		string(id),
	).Scan(&source, &topic, &startedAt, &endedAt, &status, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get session", err)
	}

	return &types.Session{
		ID:         id,
		Source:     source,
		Topic:      topic.String,
		StartedAt:  fromNanos(startedAt),
		EndedAt:    timePtr(endedAt),
		Status:     types.SessionStatus(status),
		EventCount: count,
	}, nil
}
