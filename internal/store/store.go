// Package store is an optional, off-hot-path diagnostic audit trail of
// coroutine lifecycle transitions and terminal exceptions (spec §10).
// Grounded on the teacher's internal/store's PostgresStore/pgxpool
// construction and its SaveInvocationLog/ListInvocationLogs shape,
// narrowed from a multi-table function/invocation/tenant schema down to
// one append-only table recording when and why a coroutine exited.
// internal/instance only ever calls this asynchronously, off the
// scheduler's own goroutine (spec §4 "never on the scheduler's hot
// path").
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CoroutineRecord is one terminal snapshot of a coroutine: its exit
// state, its exception if it died with one unwound, and how long it
// ran (spec §4.5 "(birth)...(death)").
type CoroutineRecord struct {
	ID           string    `json:"id"`
	InstanceID   string    `json:"instance_id"`
	Name         string    `json:"name"`
	State        string    `json:"state"` // terminal corstate.State.String()
	ExceptAtom   string    `json:"except_atom,omitempty"`
	ExceptReason string    `json:"except_reason,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// Store is a Postgres-backed append-only record of coroutine exits.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies it, and ensures the schema exists
// (same three-step sequence as the teacher's NewPostgresStore: connect,
// ping, ensureSchema, unwinding the pool on any failure).
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create postgres pool: %w", err)
	}

	s := &Store{pool: pool}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS coroutine_records (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			except_atom TEXT NOT NULL DEFAULT '',
			except_reason TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// SaveCoroutineRecord inserts rec, ignoring a duplicate id (spec's
// audit trail is append-only and keyed on the coroutine's own identity,
// so a retry after a transient write failure is harmless).
func (s *Store) SaveCoroutineRecord(ctx context.Context, rec *CoroutineRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("store: coroutine record id is required")
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO coroutine_records (id, instance_id, name, state, except_atom, except_reason, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.InstanceID, rec.Name, rec.State, rec.ExceptAtom, rec.ExceptReason, rec.StartedAt, rec.EndedAt)
	if err != nil {
		return fmt.Errorf("store: save coroutine record: %w", err)
	}
	return nil
}

// ListCoroutineRecords returns the most recent records for instanceID,
// newest first (spec §10 "diagnostic audit trail").
func (s *Store) ListCoroutineRecords(ctx context.Context, instanceID string, limit, offset int) ([]*CoroutineRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, name, state, except_atom, except_reason, started_at, ended_at
		FROM coroutine_records
		WHERE instance_id = $1
		ORDER BY ended_at DESC
		LIMIT $2 OFFSET $3
	`, instanceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list coroutine records: %w", err)
	}
	defer rows.Close()

	var recs []*CoroutineRecord
	for rows.Next() {
		var rec CoroutineRecord
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rec.Name, &rec.State, &rec.ExceptAtom, &rec.ExceptReason, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("store: scan coroutine record: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list coroutine records rows: %w", err)
	}
	return recs, nil
}
