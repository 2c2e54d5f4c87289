// Package postgres is the shared Store used when several service instances
// run against one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"interview-scheduler/internal/scheduling"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool      *pgxpool.Pool
	q         querier
	inTx      bool
	logger    *zap.Logger
	txTimeout time.Duration
}

var _ scheduling.Store = (*Store)(nil)

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, txTimeout time.Duration, logger *zap.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return New(pool, txTimeout, logger), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, txTimeout time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, q: pool, logger: logger.Named("postgres"), txTimeout: txTimeout}
}

// Pool exposes the connection pool for collaborators reading other tables.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback(context.Background())

	bound := &Store{pool: s.pool, q: tx, inTx: true, logger: s.logger, txTimeout: s.txTimeout}
	if err := fn(ctx, bound); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

// --- slots ---

const slotColumns = `id, start_time, interviewer_name, is_booked, booking_id, created_at`

func (s *Store) InsertSlot(ctx context.Context, slot *scheduling.Slot) error {
	q := `INSERT INTO interview_slots (id, start_time, start_at, interviewer_name, is_booked, booking_id, created_at)
	      VALUES ($1,$2,$3,$4,false,NULL,$5)`
	_, err := s.q.Exec(ctx, q,
		slot.ID, slot.StartTime.Format(time.RFC3339Nano), slot.StartTime, slot.InterviewerName, slot.CreatedAt)
	if isUniqueViolation(err) {
		return scheduling.ErrSlotExists
	}
	if err != nil {
		return fmt.Errorf("insert slot: %w", classify(err))
	}
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (*scheduling.Slot, error) {
	q := `SELECT ` + slotColumns + ` FROM interview_slots WHERE id=$1`
	slot, err := scanSlot(s.q.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.OnlyFree {
		where = append(where, "is_booked = false")
	}
	if !f.From.IsZero() {
		where = append(where, "start_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_at < "+arg(f.To))
	}
	if f.Interviewer != "" {
		where = append(where, "lower(interviewer_name) = lower("+arg(f.Interviewer)+")")
	}

	q := `SELECT ` + slotColumns + ` FROM interview_slots`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_at, id"

	rows, err := s.q.Query(ctx, q, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slots: %w", classify(err))
	}
	return out, nil
}

func (s *Store) SlotExists(ctx context.Context, interviewer string, start time.Time) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM interview_slots WHERE interviewer_name=$1 AND start_at=$2)`
	if err := s.q.QueryRow(ctx, q, interviewer, start).Scan(&exists); err != nil {
		return false, fmt.Errorf("slot exists: %w", classify(err))
	}
	return exists, nil
}

func (s *Store) DeleteFreeSlot(ctx context.Context, id string) error {
	res, err := s.q.Exec(ctx, `DELETE FROM interview_slots WHERE id=$1 AND is_booked=false`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", classify(err))
	}
	if res.RowsAffected() == 1 {
		return nil
	}
	return s.missingOrBooked(ctx, id, "booked slots cannot be deleted")
}

// MarkBooked is a conditional UPDATE. Concurrent writers queue on the row
// lock and re-check is_booked once the winner commits.
func (s *Store) MarkBooked(ctx context.Context, slotID, bookingID string) error {
	res, err := s.q.Exec(ctx,
		`UPDATE interview_slots SET is_booked=true, booking_id=$2 WHERE id=$1 AND is_booked=false`,
		slotID, bookingID)
	if err != nil {
		return fmt.Errorf("mark booked: %w", classify(err))
	}
	if res.RowsAffected() == 1 {
		return nil
	}
	return s.missingOrBooked(ctx, slotID, "")
}

func (s *Store) MarkFree(ctx context.Context, slotID string) error {
	res, err := s.q.Exec(ctx,
		`UPDATE interview_slots SET is_booked=false, booking_id=NULL WHERE id=$1`, slotID)
	if err != nil {
		return fmt.Errorf("mark free: %w", classify(err))
	}
	if res.RowsAffected() == 0 {
		return scheduling.ErrSlotNotFound
	}
	return nil
}

func (s *Store) missingOrBooked(ctx context.Context, slotID, msg string) error {
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM interview_slots WHERE id=$1)`, slotID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup slot: %w", classify(err))
	}
	if !exists {
		return scheduling.ErrSlotNotFound
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
	q := `INSERT INTO interviews
	      (id, candidate_id, job_id, slot_id, interviewer_name, meeting_link, notes,
	       status, scheduled_time, scheduled_at, scheduled_date, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := s.q.Exec(ctx, q,
		iv.ID, iv.CandidateID, iv.JobID, iv.SlotID, iv.InterviewerName, iv.MeetingLink, iv.Notes,
		string(iv.Status), iv.ScheduledTime.Format(time.RFC3339Nano), iv.ScheduledTime,
		scheduling.CalendarDate(iv.ScheduledTime), iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert interview: %w", classify(err))
	}
	return nil
}

func (s *Store) GetInterview(ctx context.Context, id string, forUpdate bool) (*scheduling.Interview, error) {
	q := `SELECT ` + interviewColumns + ` FROM interviews WHERE id=$1`
	if forUpdate && s.inTx {
		q += " FOR UPDATE"
	}
	iv, err := scanInterview(s.q.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview %s: %w", id, classify(err))
	}
	return iv, nil
}

func (s *Store) UpdateInterview(ctx context.Context, iv *scheduling.Interview) error {
	q := `UPDATE interviews
	      SET slot_id=$2, interviewer_name=$3, meeting_link=$4, notes=$5, status=$6,
	          scheduled_time=$7, scheduled_at=$8, scheduled_date=$9, updated_at=$10
	      WHERE id=$1`
	res, err := s.q.Exec(ctx, q,
		iv.ID, iv.SlotID, iv.InterviewerName, iv.MeetingLink, iv.Notes, string(iv.Status),
		iv.ScheduledTime.Format(time.RFC3339Nano), iv.ScheduledTime, scheduling.CalendarDate(iv.ScheduledTime),
		iv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update interview: %w", classify(err))
	}
	if res.RowsAffected() == 0 {
		return scheduling.ErrBookingNotFound
	}
	return nil
}

func (s *Store) ListInterviews(ctx context.Context, f scheduling.InterviewFilter) ([]scheduling.Interview, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Date != "" {
		where = append(where, "scheduled_date = "+arg(f.Date))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Interviewer != "" {
		where = append(where, "lower(interviewer_name) = lower("+arg(f.Interviewer)+")")
	}
	if f.CandidateID != "" {
		where = append(where, "candidate_id = "+arg(f.CandidateID))
	}
	if !f.From.IsZero() {
		where = append(where, "scheduled_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "scheduled_at <= "+arg(f.To))
	}

	q := `SELECT ` + interviewColumns + ` FROM interviews`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY scheduled_at, id"

	rows, err := s.q.Query(ctx, q, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list interviews: %w", classify(err))
	}
	return out, nil
}

// --- helpers ---

func scanSlot(row pgx.Row) (*scheduling.Slot, error) {
	var (
		slot  scheduling.Slot
		start string
	)
	if err := row.Scan(&slot.ID, &start, &slot.InterviewerName, &slot.IsBooked, &slot.BookingID, &slot.CreatedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return nil, fmt.Errorf("slot %s start_time: %w", slot.ID, err)
	}
	slot.StartTime = t
	return &slot, nil
}

func scanInterview(row pgx.Row) (*scheduling.Interview, error) {
	var (
		iv        scheduling.Interview
		status    string
		scheduled string
	)
	if err := row.Scan(&iv.ID, &iv.CandidateID, &iv.JobID, &iv.SlotID, &iv.InterviewerName, &iv.MeetingLink,
		&iv.Notes, &status, &scheduled, &iv.CreatedAt, &iv.UpdatedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, scheduled)
	if err != nil {
		return nil, fmt.Errorf("interview %s scheduled_time: %w", iv.ID, err)
	}
	iv.Status = scheduling.Status(status)
	iv.ScheduledTime = t
	return &iv, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classify marks timeouts, dropped connections, and lock conflicts as
// retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", scheduling.ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P01":
			return fmt.Errorf("%w: %w", scheduling.ErrUnavailable, err)
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", scheduling.ErrUnavailable, err)
	}
	return err
}
