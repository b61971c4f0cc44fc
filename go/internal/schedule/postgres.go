package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS guild_schedule (
    guild_id    TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    time_slot   SMALLINT NOT NULL,
    window_from DATE,
    window_to   DATE,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const getScheduleSQL = `
SELECT guild_id, owner_id, time_slot, window_from, window_to, updated_at
FROM guild_schedule
WHERE guild_id = $1`

const saveScheduleSQL = `
INSERT INTO guild_schedule (guild_id, owner_id, time_slot, window_from, window_to, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (guild_id) DO UPDATE SET
    owner_id    = EXCLUDED.owner_id,
    time_slot   = EXCLUDED.time_slot,
    window_from = EXCLUDED.window_from,
    window_to   = EXCLUDED.window_to,
    updated_at  = EXCLUDED.updated_at`

// PostgresRepository stores schedules in the guild_schedule table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the guild_schedule table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create guild_schedule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, guildID string) (Schedule, error) {
	var (
		s        Schedule
		slot     int16
		from, to *time.Time
	)
	err := r.pool.QueryRow(ctx, getScheduleSQL, guildID).
		Scan(&s.GuildID, &s.OwnerID, &slot, &from, &to, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Schedule{}, ErrGuildNotFound
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("get schedule %s: %w", guildID, err)
	}

	s.Slot = Slot(slot)
	if from != nil {
		s.Window.From = Date(*from)
	}
	if to != nil {
		s.Window.To = Date(*to)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r *PostgresRepository) Save(ctx context.Context, s Schedule) error {
	var from, to *time.Time
	if s.Window.IsSet() {
		from, to = &s.Window.From, &s.Window.To
	}
	_, err := r.pool.Exec(ctx, saveScheduleSQL,
		s.GuildID, s.OwnerID, int16(s.Slot), from, to, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", s.GuildID, err)
	}
	return nil
}
