package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// start_time and scheduled_time keep the offset the time was given in; the
// *_at columns carry the instant for range queries and ordering.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS interview_slots (
		id               TEXT PRIMARY KEY,
		start_time       TEXT NOT NULL,
		start_at         TIMESTAMPTZ NOT NULL,
		interviewer_name TEXT NOT NULL,
		is_booked        BOOLEAN NOT NULL DEFAULT false,
		booking_id       TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT interview_slots_booking_consistent CHECK (is_booked = (booking_id IS NOT NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_slots_interviewer_start ON interview_slots (interviewer_name, start_at)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_start ON interview_slots (start_at)`,

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
		scheduled_at     TIMESTAMPTZ NOT NULL,
		scheduled_date   TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interviews_date ON interviews (scheduled_date, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_interviews_candidate ON interviews (candidate_id, scheduled_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_interviews_active_slot ON interviews (slot_id) WHERE status = 'scheduled'`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.logger.Info("schema up to date", zap.Int("statements", len(schema)))
	return nil
}
