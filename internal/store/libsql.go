package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/actiondesk/pkg/schema"
)

// pragmas are applied once per connection open. Some return a row, so they
// go through QueryRow and the result is discarded.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// LibSQLStore is the embedded libSQL Store.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens dbPath, a file URI such as "file:/var/lib/actiondesk.db".
// The caller runs Migrate before first use.
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql %s: %w", dbPath, err)
	}
	// One writer keeps sequence assignment and WAL checkpoints simple.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		var ignored string
		_ = db.QueryRow(p).Scan(&ignored)
	}
	return &LibSQLStore{db: db}, nil
}

func (s *LibSQLStore) DB() *sql.DB  { return s.db }
func (s *LibSQLStore) Close() error { return s.db.Close() }

func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum reclaims pages freed by PruneEvents.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return schema.NewError(schema.ErrCodeStore, "vacuum").WithCause(err)
	}
	return nil
}

// PutSealed inserts or replaces the blob for key. Replacing stamps rotated_at.
func (s *LibSQLStore) PutSealed(ctx context.Context, key string, blob []byte) error {
	const q = `INSERT INTO secrets (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, rotated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, q, key, blob); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "put sealed %q", key).WithCause(err)
	}
	return nil
}

// GetSealed returns an ErrCodeNotFound error when key is absent.
func (s *LibSQLStore) GetSealed(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, notFound(key)
	case err != nil:
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get sealed %q", key).WithCause(err)
	}
	return blob, nil
}

func (s *LibSQLStore) DeleteSealed(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete sealed %q", key).WithCause(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(key)
	}
	return nil
}

// SealedKeys lists every key in ascending order.
func (s *LibSQLStore) SealedKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list sealed keys").WithCause(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// AppendEvent writes event with the sequence it already carries; a repeated
// (request, sequence) pair is rejected by the unique index. EventLog is the
// caller that assigns sequences.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO request_events (request_id, sequence, event_type, kind, state, message, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.RequestID, event.Sequence, event.Type,
		orNull(event.Kind), orNull(event.State), event.Message, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append %s #%d: %w", event.RequestID, event.Sequence, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetEvents returns the request's events with sequence > since, oldest first.
func (s *LibSQLStore) GetEvents(ctx context.Context, requestID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, sequence, event_type, kind, state, message, timestamp
		 FROM request_events WHERE request_id = ? AND sequence > ? ORDER BY sequence`,
		requestID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("events for %s: %w", requestID, err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e           Event
			kind, state sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Sequence, &e.Type, &kind, &state, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind, e.State = kind.String, state.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// LastSequence is 0 for a request with no events.
func (s *LibSQLStore) LastSequence(ctx context.Context, requestID string) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM request_events WHERE request_id = ?`, requestID,
	).Scan(&last)
	return last, err
}

// PruneEvents deletes events recorded before the cutoff and reports how many.
func (s *LibSQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

func notFound(key string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "sealed value %q not found", key)
}

func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
