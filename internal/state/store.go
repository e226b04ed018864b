package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps any failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Store is a SQLite-backed store for events, insights and sessions.
// The connection is opened lazily by Init; every operation initialises on
// demand, so callers may skip Init.
type Store struct {
	path string
	mu   sync.Mutex
	db   *sql.DB
}

// NewStore creates a store for the database file at path. Nothing is opened
// until the first call to Init or any other operation.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the database file path used by this store.
func (s *Store) Path() string {
	return s.path
}

// Init opens the database and applies the schema. It is a no-op once it has
// succeeded.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	db, err := Open(s.path)
	if err != nil {
		return storageErr("open", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return storageErr("schema", err)
	}
	s.db = db
	return nil
}

// Close releases the database. A later operation reopens it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return storageErr("close", err)
}

func (s *Store) handle(ctx context.Context) (*sql.DB, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, storageErr("handle", errors.New("store closed"))
	}
	return s.db, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalJSON decodes a nullable JSON column into dst, leaving dst
// untouched when the column is empty.
func unmarshalJSON(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
