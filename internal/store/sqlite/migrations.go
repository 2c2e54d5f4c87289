package sqlite

import (
	"context"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS interview_slots (
		id               TEXT PRIMARY KEY,
		start_time       TEXT NOT NULL,
		start_unix       INTEGER NOT NULL,
		interviewer_name TEXT NOT NULL,
		is_booked        INTEGER NOT NULL DEFAULT 0,
		booking_id       TEXT,
		created_at       TEXT NOT NULL,
		CHECK ((is_booked = 1) = (booking_id IS NOT NULL))
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_slots_interviewer_start ON interview_slots(interviewer_name, start_unix)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_start ON interview_slots(start_unix)`,

	`CREATE TABLE IF NOT EXISTS interviews (
		id               TEXT PRIMARY KEY,
		candidate_id     TEXT NOT NULL,
		job_id           TEXT NOT NULL,
		slot_id          TEXT NOT NULL,
		interviewer_name TEXT NOT NULL DEFAULT '',
		meeting_link     TEXT NOT NULL DEFAULT '',
		notes            TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL CHECK (status IN ('scheduled', 'completed', 'cancelled')),
		scheduled_time   TEXT NOT NULL,
		scheduled_unix   INTEGER NOT NULL,
		scheduled_date   TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_interviews_date ON interviews(scheduled_date, scheduled_unix)`,
	`CREATE INDEX IF NOT EXISTS idx_interviews_candidate ON interviews(candidate_id, scheduled_unix)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_interviews_active_slot ON interviews(slot_id) WHERE status = 'scheduled'`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
