// Package sqlite is a single-node Store backed by modernc.org/sqlite. Writers
// are serialized on one connection, which is what makes MarkBooked a
// compare-and-set here; use the postgres store when several service
// instances share state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"interview-scheduler/internal/scheduling"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements scheduling.Store.
type Store struct {
	db        *sql.DB
	q         querier
	inTx      bool
	logger    *zap.Logger
	txTimeout time.Duration
}

var _ scheduling.Store = (*Store)(nil)

// Open opens (or creates) the database at path. Use ":memory:" in tests.
func Open(path string, txTimeout time.Duration, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: transactions are serialized and ":memory:" stays a
	// single database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &Store{
		db:        db,
		q:         db,
		logger:    logger.Named("sqlite"),
		txTimeout: txTimeout,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback()

	bound := &Store{db: s.db, q: tx, inTx: true, logger: s.logger, txTimeout: s.txTimeout}
	if err := fn(ctx, bound); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

// --- slots ---

const slotColumns = `id, start_time, interviewer_name, is_booked, booking_id, created_at`

func (s *Store) InsertSlot(ctx context.Context, slot *scheduling.Slot) error {
	s.logger.Debug("sql", zap.String("op", "insert"), zap.String("table", "interview_slots"), zap.String("id", slot.ID))
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO interview_slots (id, start_time, start_unix, interviewer_name, is_booked, booking_id, created_at)
		 VALUES (?, ?, ?, ?, 0, NULL, ?)`,
		slot.ID, formatTime(slot.StartTime), slot.StartTime.UnixNano(), slot.InterviewerName, formatTime(slot.CreatedAt),
	)
	if isConstraint(err) {
		return scheduling.ErrSlotExists
	}
	if err != nil {
		return fmt.Errorf("insert slot: %w", classify(err))
	}
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (*scheduling.Slot, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM interview_slots WHERE id = ?`, id)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scheduling.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", id, classify(err))
	}
	return slot, nil
}

func (s *Store) ListSlots(ctx context.Context, f scheduling.SlotFilter) ([]scheduling.Slot, error) {
	var (
		where []string
		args  []any
	)
	if f.OnlyFree {
		where = append(where, "is_booked = 0")
	}
	if !f.From.IsZero() {
		where = append(where, "start_unix >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, "start_unix < ?")
		args = append(args, f.To.UnixNano())
	}
	if f.Interviewer != "" {
		where = append(where, "interviewer_name = ? COLLATE NOCASE")
		args = append(args, f.Interviewer)
	}

	q := `SELECT ` + slotColumns + ` FROM interview_slots`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_unix, id"

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", classify(err))
	}
	defer rows.Close()

	out := []scheduling.Slot{}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out = append(out, *slot)
	}
	return out, rows.Err()
}

func (s *Store) SlotExists(ctx context.Context, interviewer string, start time.Time) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx,
		`SELECT 1 FROM interview_slots WHERE interviewer_name = ? AND start_unix = ?`,
		interviewer, start.UnixNano(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("slot exists: %w", classify(err))
	}
	return true, nil
}

func (s *Store) DeleteFreeSlot(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM interview_slots WHERE id = ? AND is_booked = 0`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return s.missingOrBooked(ctx, id, "booked slots cannot be deleted")
}

// MarkBooked flips a free slot to booked in one conditional UPDATE.
func (s *Store) MarkBooked(ctx context.Context, slotID, bookingID string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE interview_slots SET is_booked = 1, booking_id = ? WHERE id = ? AND is_booked = 0`,
		bookingID, slotID,
	)
	if err != nil {
		return fmt.Errorf("mark booked: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return s.missingOrBooked(ctx, slotID, "")
}

func (s *Store) MarkFree(ctx context.Context, slotID string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE interview_slots SET is_booked = 0, booking_id = NULL WHERE id = ?`, slotID)
	if err != nil {
		return fmt.Errorf("mark free: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scheduling.ErrSlotNotFound
	}
	return nil
}

func (s *Store) missingOrBooked(ctx context.Context, slotID, msg string) error {
	var one int
	err := s.q.QueryRowContext(ctx, `SELECT 1 FROM interview_slots WHERE id = ?`, slotID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return scheduling.ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup slot: %w", classify(err))
	}
	if msg != "" {
		return &scheduling.Error{Kind: scheduling.KindSlotAlreadyBooked, Msg: msg}
	}
	return scheduling.ErrSlotAlreadyBooked
}

// --- interviews ---

const interviewColumns = `id, candidate_id, job_id, slot_id, interviewer_name, meeting_link, notes,
	status, scheduled_time, created_at, updated_at`

func (s *Store) InsertInterview(ctx context.Context, iv *scheduling.Interview) error {
	s.logger.Debug("sql", zap.String("op", "insert"), zap.String("table", "interviews"), zap.String("id", iv.ID))
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO interviews (id, candidate_id, job_id, slot_id, interviewer_name, meeting_link, notes,
			status, scheduled_time, scheduled_unix, scheduled_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.CandidateID, iv.JobID, iv.SlotID, iv.InterviewerName, iv.MeetingLink, iv.Notes,
		string(iv.Status), formatTime(iv.ScheduledTime), iv.ScheduledTime.UnixNano(), scheduling.CalendarDate(iv.ScheduledTime),
		formatTime(iv.CreatedAt), formatTime(iv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", classify(err))
	}
	return nil
}

// GetInterview ignores forUpdate: the single connection already serializes
// transactions.
func (s *Store) GetInterview(ctx context.Context, id string, forUpdate bool) (*scheduling.Interview, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id)
	iv, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scheduling.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview %s: %w", id, classify(err))
	}
	return iv, nil
}

func (s *Store) UpdateInterview(ctx context.Context, iv *scheduling.Interview) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE interviews SET slot_id = ?, interviewer_name = ?, meeting_link = ?, notes = ?, status = ?,
			scheduled_time = ?, scheduled_unix = ?, scheduled_date = ?, updated_at = ?
		 WHERE id = ?`,
		iv.SlotID, iv.InterviewerName, iv.MeetingLink, iv.Notes, string(iv.Status),
		formatTime(iv.ScheduledTime), iv.ScheduledTime.UnixNano(), scheduling.CalendarDate(iv.ScheduledTime),
		formatTime(iv.UpdatedAt), iv.ID,
	)
	if err != nil {
		return fmt.Errorf("update interview: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scheduling.ErrBookingNotFound
	}
	return nil
}

func (s *Store) ListInterviews(ctx context.Context, f scheduling.InterviewFilter) ([]scheduling.Interview, error) {
	var (
		where []string
		args  []any
	)
	if f.Date != "" {
		where = append(where, "scheduled_date = ?")
		args = append(args, f.Date)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Interviewer != "" {
		where = append(where, "interviewer_name = ? COLLATE NOCASE")
		args = append(args, f.Interviewer)
	}
	if f.CandidateID != "" {
		where = append(where, "candidate_id = ?")
		args = append(args, f.CandidateID)
	}
	if !f.From.IsZero() {
		where = append(where, "scheduled_unix >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, "scheduled_unix <= ?")
		args = append(args, f.To.UnixNano())
	}

	q := `SELECT ` + interviewColumns + ` FROM interviews`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY scheduled_unix, id"

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", classify(err))
	}
	defer rows.Close()

	out := []scheduling.Interview{}
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		out = append(out, *iv)
	}
	return out, rows.Err()
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(row scanner) (*scheduling.Slot, error) {
	var (
		slot             scheduling.Slot
		start, createdAt string
		bookingID        sql.NullString
	)
	if err := row.Scan(&slot.ID, &start, &slot.InterviewerName, &slot.IsBooked, &bookingID, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if slot.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("slot %s start_time: %w", slot.ID, err)
	}
	if slot.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("slot %s created_at: %w", slot.ID, err)
	}
	if bookingID.Valid {
		slot.BookingID = &bookingID.String
	}
	return &slot, nil
}

func scanInterview(row scanner) (*scheduling.Interview, error) {
	var (
		iv                              scheduling.Interview
		status                          string
		scheduled, createdAt, updatedAt string
	)
	if err := row.Scan(&iv.ID, &iv.CandidateID, &iv.JobID, &iv.SlotID, &iv.InterviewerName, &iv.MeetingLink,
		&iv.Notes, &status, &scheduled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	iv.Status = scheduling.Status(status)
	var err error
	if iv.ScheduledTime, err = parseTime(scheduled); err != nil {
		return nil, fmt.Errorf("interview %s scheduled_time: %w", iv.ID, err)
	}
	if iv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("interview %s created_at: %w", iv.ID, err)
	}
	if iv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("interview %s updated_at: %w", iv.ID, err)
	}
	return &iv, nil
}

// Times keep the offset they were given in.
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// classify marks lock contention and timeouts as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", scheduling.ErrUnavailable, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", scheduling.ErrUnavailable, err)
		}
	}
	return err
}
