package timerstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/mcdev12/battletimer/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS timer_kv_revision;
CREATE TABLE IF NOT EXISTS timer_kv (
	key        TEXT PRIMARY KEY,
	value      JSONB,
	revision   BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

func (q *queries) getValue(ctx context.Context, key string) (pqtype.NullRawMessage, uint64, error) {
	var (
		value    pqtype.NullRawMessage
		revision int64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT value, revision FROM timer_kv WHERE key = $1`, key,
	).Scan(&value, &revision)
	return value, uint64(revision), err
}

func (q *queries) insertValue(ctx context.Context, key string, value []byte) (uint64, error) {
	var revision int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO timer_kv (key, value, revision)
		 VALUES ($1, $2, nextval('timer_kv_revision'))
		 ON CONFLICT (key) DO NOTHING
		 RETURNING revision`,
		key, sqlutil.ToNullRawMessage(value),
	).Scan(&revision)
	return uint64(revision), err
}

func (q *queries) updateValue(ctx context.Context, key string, value []byte, expected uint64) (uint64, error) {
	var revision int64
	err := q.db.QueryRowContext(ctx,
		`UPDATE timer_kv
		 SET value = $2, revision = nextval('timer_kv_revision'), updated_at = now()
		 WHERE key = $1 AND revision = $3
		 RETURNING revision`,
		key, sqlutil.ToNullRawMessage(value), int64(expected),
	).Scan(&revision)
	return uint64(revision), err
}

func (q *queries) upsertValue(ctx context.Context, key string, value []byte) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO timer_kv (key, value, revision)
		 VALUES ($1, $2, nextval('timer_kv_revision'))
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, revision = EXCLUDED.revision, updated_at = now()`,
		key, sqlutil.ToNullRawMessage(value),
	)
	return err
}

func (q *queries) deleteKeys(ctx context.Context, keys ...string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM timer_kv WHERE key = ANY($1)`, pq.Array(keys))
	return err
}

// PostgresStore keeps timer state in a jsonb key-value table. A shared sequence
// numbers every write, which gives the conditional Put its revisions.
type PostgresStore struct {
	db      *sql.DB
	queries *queries
}

// NewPostgresStore returns a store over db. Call Migrate once before use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, queries: newQueries(db)}
}

// Migrate creates the table and sequence if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate timer_kv: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (clock.State, error) {
	value, revision, err := s.queries.getValue(ctx, StateKey(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return clock.State{}, ErrNotFound
		}
		return clock.State{}, fmt.Errorf("failed to get timer state: %w", err)
	}
	raw := sqlutil.FromNullRawMessage(value)
	if raw == nil {
		return clock.State{}, ErrNotFound
	}

	var state clock.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return clock.State{}, fmt.Errorf("failed to decode timer state: %w", err)
	}
	state.Revision = revision
	return state, nil
}

func (s *PostgresStore) Put(ctx context.Context, token string, state clock.State) (uint64, error) {
	if !ValidToken(token) {
		return 0, ErrInvalidToken
	}
	expected := state.Revision
	state.Revision = 0
	value, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("failed to encode timer state: %w", err)
	}

	var revision uint64
	if expected == 0 {
		revision, err = s.queries.insertValue(ctx, StateKey(token), value)
	} else {
		revision, err = s.queries.updateValue(ctx, StateKey(token), value, expected)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("failed to put timer state: %w", err)
	}
	return revision, nil
}

// Delete removes state and ownership together.
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	err := sqlutil.Run(ctx, s.db,
		func(tx *sql.Tx) *queries { return newQueries(tx) },
		func(q *queries) error {
			if err := q.deleteKeys(ctx, StateKey(token)); err != nil {
				return err
			}
			return q.deleteKeys(ctx, OwnerKey(token))
		},
	)
	if err != nil {
		return fmt.Errorf("failed to delete timer: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOwnership(ctx context.Context, token string) (Ownership, error) {
	value, _, err := s.queries.getValue(ctx, OwnerKey(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ownership{}, ErrNotFound
		}
		return Ownership{}, fmt.Errorf("failed to get ownership: %w", err)
	}
	raw := sqlutil.FromNullRawMessage(value)
	if raw == nil {
		return Ownership{}, ErrNotFound
	}

	var owner Ownership
	if err := json.Unmarshal(raw, &owner); err != nil {
		return Ownership{}, fmt.Errorf("failed to decode ownership: %w", err)
	}
	return owner, nil
}

func (s *PostgresStore) PutOwnership(ctx context.Context, token string, owner Ownership) error {
	if !ValidToken(token) {
		return ErrInvalidToken
	}
	value, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("failed to encode ownership: %w", err)
	}
	if err := s.queries.upsertValue(ctx, OwnerKey(token), value); err != nil {
		return fmt.Errorf("failed to put ownership: %w", err)
	}
	return nil
}
