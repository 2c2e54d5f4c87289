package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingService composes SlotPool operations into all-or-nothing booking
// operations. Every mutating operation runs inside one store transaction.
type BookingService struct {
	store    Store
	pool     *SlotPool
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
	spacing  time.Duration
	hours    *BusinessHours
}

// Option configures a BookingService.
type Option func(*BookingService)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *BookingService) { s.now = now }
}

// WithObserver reports operation outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *BookingService) { s.observer = o }
}

// WithIDGenerator overrides interview ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *BookingService) { s.newID = fn }
}

func NewBookingService(store Store, pool *SlotPool, logger *zap.Logger, opts ...Option) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BookingService{
		store:    store,
		pool:     pool,
		logger:   logger.Named("booking"),
		observer: nopObserver{},
		now:      time.Now,
		newID:    uuid.NewString,
		spacing:  DefaultInterviewLength + DefaultInterviewBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	CandidateID     string
	JobID           string
	SlotID          string
	InterviewerName string
	MeetingLink     string
	Notes           string
}

func (r *CreateRequest) normalize() error {
	r.CandidateID = strings.TrimSpace(r.CandidateID)
	r.JobID = strings.TrimSpace(r.JobID)
	r.SlotID = strings.TrimSpace(r.SlotID)
	r.InterviewerName = strings.TrimSpace(r.InterviewerName)
	r.MeetingLink = strings.TrimSpace(r.MeetingLink)

	var missing []string
	if r.CandidateID == "" {
		missing = append(missing, "candidate_id")
	}
	if r.JobID == "" {
		missing = append(missing, "job_id")
	}
	if r.SlotID == "" {
		missing = append(missing, "slot_id")
	}
	if len(missing) > 0 {
		return Validation("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// RescheduleRequest moves an interview to NewSlotID. Nil optional fields keep
// their current value, except InterviewerName which follows the new slot.
type RescheduleRequest struct {
	NewSlotID       string
	InterviewerName *string
	MeetingLink     *string
}

// Create reserves the slot and records a scheduled interview. If the slot is
// taken or missing nothing is written.
func (s *BookingService) Create(ctx context.Context, req CreateRequest) (*Interview, error) {
	const op = "create"
	if err := req.normalize(); err != nil {
		return nil, s.finish(op, err)
	}

	var created *Interview
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		slot, err := tx.GetSlot(ctx, req.SlotID)
		if err != nil {
			return err
		}

		id := s.newID()
		if err := s.pool.within(tx).Reserve(ctx, slot.ID, id); err != nil {
			return err
		}

		interviewer := req.InterviewerName
		if interviewer == "" {
			interviewer = slot.InterviewerName
		}
		now := s.now().UTC()
		iv := &Interview{
			ID:              id,
			CandidateID:     req.CandidateID,
			JobID:           req.JobID,
			SlotID:          slot.ID,
			InterviewerName: interviewer,
			MeetingLink:     req.MeetingLink,
			Notes:           req.Notes,
			Status:          StatusScheduled,
			ScheduledTime:   slot.StartTime,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertInterview(ctx, iv); err != nil {
			return err
		}
		created = iv
		return nil
	})
	if err != nil {
		return nil, s.finish(op, err)
	}

	s.finish(op, nil)
	s.logger.Info("interview scheduled",
		zap.String("interview_id", created.ID),
		zap.String("slot_id", created.SlotID),
		zap.String("candidate_id", created.CandidateID),
		zap.String("job_id", created.JobID),
	)
	s.warnCandidateOverlap(ctx, created)
	return created, nil
}

// warnCandidateOverlap logs when a new booking lands too close to another
// scheduled interview of the same candidate. The booking stands.
func (s *BookingService) warnCandidateOverlap(ctx context.Context, iv *Interview) {
	busy, err := s.candidateSchedule(ctx, iv.CandidateID, iv.ID, iv.ScheduledTime, iv.ScheduledTime)
	if err != nil {
		s.logger.Debug("candidate overlap check failed", zap.String("interview_id", iv.ID), zap.Error(err))
		return
	}
	if other := s.closest(iv.ScheduledTime, busy); other != nil {
		s.logger.Warn("candidate has an overlapping interview",
			zap.String("interview_id", iv.ID),
			zap.String("candidate_id", iv.CandidateID),
			zap.String("other_interview_id", other.ID),
			zap.Time("other_scheduled_time", other.ScheduledTime),
		)
	}
}

// Reschedule moves a scheduled interview to another slot. The new slot is
// reserved before the old one is released, so a failed reservation leaves
// the interview and its current slot untouched.
func (s *BookingService) Reschedule(ctx context.Context, id string, req RescheduleRequest) (*Interview, error) {
	const op = "reschedule"
	id = strings.TrimSpace(id)
	req.NewSlotID = strings.TrimSpace(req.NewSlotID)
	if id == "" {
		return nil, s.finish(op, Validation("interview id is required"))
	}
	if req.NewSlotID == "" {
		return nil, s.finish(op, Validation("missing required fields: new_slot_id"))
	}

	var updated *Interview
	var oldSlotID string
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		iv, err := tx.GetInterview(ctx, id, true)
		if err != nil {
			return err
		}
		if iv.Status != StatusScheduled {
			return &Error{Kind: KindInvalidTransition, Msg: "cannot reschedule a " + string(iv.Status) + " interview"}
		}
		if iv.SlotID == req.NewSlotID {
			return Validation("interview is already booked on this slot")
		}

		newSlot, err := tx.GetSlot(ctx, req.NewSlotID)
		if err != nil {
			return err
		}

		pool := s.pool.within(tx)
		if err := pool.Reserve(ctx, newSlot.ID, iv.ID); err != nil {
			return err
		}
		if err := pool.Release(ctx, iv.SlotID); err != nil {
			if !errors.Is(err, ErrSlotNotFound) {
				return err
			}
			s.logger.Warn("previous slot missing on reschedule", zap.String("interview_id", iv.ID), zap.String("slot_id", iv.SlotID))
		}

		oldSlotID = iv.SlotID
		iv.SlotID = newSlot.ID
		iv.ScheduledTime = newSlot.StartTime
		iv.InterviewerName = newSlot.InterviewerName
		if req.InterviewerName != nil && strings.TrimSpace(*req.InterviewerName) != "" {
			iv.InterviewerName = strings.TrimSpace(*req.InterviewerName)
		}
		if req.MeetingLink != nil {
			iv.MeetingLink = strings.TrimSpace(*req.MeetingLink)
		}
		iv.UpdatedAt = s.now().UTC()

		if err := tx.UpdateInterview(ctx, iv); err != nil {
			return err
		}
		updated = iv
		return nil
	})
	if err != nil {
		return nil, s.finish(op, err)
	}

	s.finish(op, nil)
	s.logger.Info("interview rescheduled",
		zap.String("interview_id", updated.ID),
		zap.String("old_slot_id", oldSlotID),
		zap.String("new_slot_id", updated.SlotID),
	)
	s.warnCandidateOverlap(ctx, updated)
	return updated, nil
}

// Cancel marks a scheduled interview cancelled and frees its slot.
func (s *BookingService) Cancel(ctx context.Context, id string) (*Interview, error) {
	return s.terminate(ctx, "cancel", id, StatusCancelled)
}

// Complete records that a scheduled interview took place. The slot is
// released so a booked slot always belongs to a scheduled interview.
func (s *BookingService) Complete(ctx context.Context, id string) (*Interview, error) {
	return s.terminate(ctx, "complete", id, StatusCompleted)
}

func (s *BookingService) terminate(ctx context.Context, op, id string, to Status) (*Interview, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, s.finish(op, Validation("interview id is required"))
	}

	var done *Interview
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		iv, err := tx.GetInterview(ctx, id, true)
		if err != nil {
			return err
		}
		if iv.Status != StatusScheduled {
			return &Error{Kind: KindInvalidTransition, Msg: "interview is already " + string(iv.Status)}
		}

		iv.Status = to
		iv.UpdatedAt = s.now().UTC()
		if err := tx.UpdateInterview(ctx, iv); err != nil {
			return err
		}
		if err := s.pool.within(tx).Release(ctx, iv.SlotID); err != nil {
			if !errors.Is(err, ErrSlotNotFound) {
				return err
			}
			s.logger.Warn("slot missing on "+op, zap.String("interview_id", iv.ID), zap.String("slot_id", iv.SlotID))
		}
		done = iv
		return nil
	})
	if err != nil {
		return nil, s.finish(op, err)
	}

	s.finish(op, nil)
	s.logger.Info("interview "+string(to),
		zap.String("interview_id", done.ID),
		zap.String("slot_id", done.SlotID),
	)
	return done, nil
}

func (s *BookingService) Get(ctx context.Context, id string) (*Interview, error) {
	iv, err := s.store.GetInterview(ctx, strings.TrimSpace(id), false)
	if err != nil {
		return nil, wrap("get interview", err)
	}
	return iv, nil
}

// ListForDate returns interviews of any status whose scheduled time falls on
// date (YYYY-MM-DD), ordered by scheduled time.
func (s *BookingService) ListForDate(ctx context.Context, date string, f InterviewFilter) ([]Interview, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, wrap("list for date", err)
	}
	f.Date = d
	return s.List(ctx, f)
}

// List returns interviews matching f ordered by scheduled time.
func (s *BookingService) List(ctx context.Context, f InterviewFilter) ([]Interview, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, wrap("list interviews", Validation("status must be one of scheduled, completed, cancelled"))
	}
	out, err := s.store.ListInterviews(ctx, f)
	if err != nil {
		return nil, wrap("list interviews", err)
	}
	return out, nil
}

// finish records the outcome of op and returns err annotated with op.
func (s *BookingService) finish(op string, err error) error {
	err = wrap(op, err)
	s.observer.BookingOp(op, outcome(err))
	if err != nil && KindOf(err) == KindInternal {
		s.logger.Error("booking operation failed", zap.String("op", op), zap.Error(err))
	}
	return err
}
