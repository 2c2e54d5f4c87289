package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"interview-scheduler/internal/scheduling"
)

// testStore opens a store in a throwaway schema of the database named by
// DATABASE_URL. The test is skipped when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	schemaName := "sched_test_" + uuid.NewString()[:8]
	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schemaName}.Sanitize()); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schemaName}.Sanitize()+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("parse DATABASE_URL: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schemaName
	cfg.MaxConns = 20
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := New(pool, 5*time.Second, zap.NewNop())
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

var slotStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type engine struct {
	pool     *scheduling.SlotPool
	bookings *scheduling.BookingService
}

func newEngine(s *Store) *engine {
	pool := scheduling.NewSlotPool(s, zap.NewNop(), nil)
	return &engine{pool: pool, bookings: scheduling.NewBookingService(s, pool, zap.NewNop())}
}

func (e *engine) slot(t *testing.T, at time.Time, interviewer string) scheduling.Slot {
	t.Helper()
	sl, err := e.pool.CreateSlot(context.Background(), scheduling.SlotSpec{StartTime: at, InterviewerName: interviewer})
	if err != nil {
		t.Fatalf("CreateSlot() error = %v", err)
	}
	return *sl
}

func TestMigrateIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMarkBookedCompareAndSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	e := newEngine(s)
	sl := e.slot(t, slotStart, "Alice")

	if err := s.MarkBooked(ctx, sl.ID, "b1"); err != nil {
		t.Fatalf("MarkBooked() error = %v", err)
	}
	if err := s.MarkBooked(ctx, sl.ID, "b2"); !errors.Is(err, scheduling.ErrSlotAlreadyBooked) {
		t.Errorf("second MarkBooked() error = %v, want ErrSlotAlreadyBooked", err)
	}
	if err := s.MarkBooked(ctx, "missing", "b3"); !errors.Is(err, scheduling.ErrSlotNotFound) {
		t.Errorf("MarkBooked(missing) error = %v, want ErrSlotNotFound", err)
	}
	got, _ := s.GetSlot(ctx, sl.ID)
	if got.BookingID == nil || *got.BookingID != "b1" {
		t.Errorf("booking_id = %v, want b1", got.BookingID)
	}

	for i := 0; i < 2; i++ {
		if err := s.MarkFree(ctx, sl.ID); err != nil {
			t.Fatalf("MarkFree() #%d error = %v", i+1, err)
		}
	}
	if err := s.MarkFree(ctx, "missing"); !errors.Is(err, scheduling.ErrSlotNotFound) {
		t.Errorf("MarkFree(missing) error = %v, want ErrSlotNotFound", err)
	}
}

func TestInsertSlotDuplicate(t *testing.T) {
	s := testStore(t)
	e := newEngine(s)
	e.slot(t, slotStart, "Alice")

	err := s.InsertSlot(context.Background(), &scheduling.Slot{
		ID: "dup", StartTime: slotStart, InterviewerName: "Alice", CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, scheduling.ErrSlotExists) {
		t.Errorf("InsertSlot(duplicate) error = %v, want ErrSlotExists", err)
	}
}

func TestConcurrentCreateSameSlot(t *testing.T) {
	s := testStore(t)
	e := newEngine(s)
	sl := e.slot(t, slotStart, "Alice")

	const n = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		booked int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.bookings.Create(context.Background(), scheduling.CreateRequest{
				CandidateID: fmt.Sprintf("c%d", i), JobID: "7", SlotID: sl.ID,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, scheduling.ErrSlotAlreadyBooked):
				booked++
			default:
				t.Errorf("Create() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || booked != n-1 {
		t.Errorf("wins = %d, already booked = %d; want 1 and %d", wins, booked, n-1)
	}
	ivs, _ := e.bookings.List(context.Background(), scheduling.InterviewFilter{Status: scheduling.StatusScheduled})
	if len(ivs) != 1 {
		t.Errorf("scheduled interviews = %d, want 1", len(ivs))
	}
}

func TestRescheduleKeepsOldSlotOnFailure(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	e := newEngine(s)
	from := e.slot(t, slotStart, "Alice")
	taken := e.slot(t, slotStart.Add(time.Hour), "Alice")
	free := e.slot(t, slotStart.Add(2*time.Hour), "Bob")

	iv, err := e.bookings.Create(ctx, scheduling.CreateRequest{CandidateID: "42", JobID: "7", SlotID: from.ID})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := e.bookings.Create(ctx, scheduling.CreateRequest{CandidateID: "99", JobID: "7", SlotID: taken.ID}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = e.bookings.Reschedule(ctx, iv.ID, scheduling.RescheduleRequest{NewSlotID: taken.ID})
	if !errors.Is(err, scheduling.ErrSlotAlreadyBooked) {
		t.Fatalf("Reschedule(taken) error = %v, want ErrSlotAlreadyBooked", err)
	}
	if got, _ := s.GetSlot(ctx, from.ID); !got.IsBooked || *got.BookingID != iv.ID {
		t.Errorf("old slot after failed reschedule = %+v, want booked by %s", got, iv.ID)
	}

	moved, err := e.bookings.Reschedule(ctx, iv.ID, scheduling.RescheduleRequest{NewSlotID: free.ID})
	if err != nil {
		t.Fatalf("Reschedule(free) error = %v", err)
	}
	if moved.SlotID != free.ID || moved.InterviewerName != "Bob" {
		t.Errorf("rescheduled = %+v, want slot %s with Bob", moved, free.ID)
	}
	if got, _ := s.GetSlot(ctx, from.ID); got.IsBooked {
		t.Error("old slot still booked after reschedule")
	}
}

func TestConcurrentCancel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	e := newEngine(s)
	sl := e.slot(t, slotStart, "Alice")
	iv, err := e.bookings.Create(ctx, scheduling.CreateRequest{CandidateID: "42", JobID: "7", SlotID: sl.ID})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		invalid int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.bookings.Cancel(ctx, iv.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, scheduling.ErrInvalidTransition):
				invalid++
			default:
				t.Errorf("Cancel() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || invalid != n-1 {
		t.Errorf("cancelled = %d, invalid = %d; want 1 and %d", ok, invalid, n-1)
	}
	if got, _ := s.GetSlot(ctx, sl.ID); got.IsBooked {
		t.Error("slot still booked after cancel")
	}
}

func TestListInterviewsFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	pst := time.FixedZone("PST", -8*3600)

	for i, c := range []struct {
		id, candidate string
		at            time.Time
	}{
		{"i1", "42", time.Date(2024, 3, 1, 17, 0, 0, 0, pst)},
		{"i2", "42", time.Date(2024, 3, 1, 19, 0, 0, 0, pst)},
		{"i3", "99", time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)},
	} {
		iv := &scheduling.Interview{
			ID: c.id, CandidateID: c.candidate, JobID: "7", SlotID: fmt.Sprintf("s%d", i),
			Status: scheduling.StatusScheduled, ScheduledTime: c.at, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.InsertInterview(ctx, iv); err != nil {
			t.Fatalf("InsertInterview(%s) error = %v", c.id, err)
		}
	}

	got, err := s.GetInterview(ctx, "i1", false)
	if err != nil {
		t.Fatalf("GetInterview() error = %v", err)
	}
	if _, off := got.ScheduledTime.Zone(); off != -8*3600 {
		t.Errorf("scheduled offset = %d, want -28800", off)
	}

	tests := []struct {
		name   string
		filter scheduling.InterviewFilter
		want   int
	}{
		{"local date", scheduling.InterviewFilter{Date: "2024-03-01"}, 2},
		{"candidate", scheduling.InterviewFilter{CandidateID: "99"}, 1},
		{"window", scheduling.InterviewFilter{
			CandidateID: "42",
			From:        time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC),
			To:          time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC),
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListInterviews(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListInterviews() error = %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("ListInterviews() = %d, want %d", len(list), tt.want)
			}
		})
	}
}
