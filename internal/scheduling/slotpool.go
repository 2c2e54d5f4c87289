package scheduling

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlotPool is the only component that flips a slot between free and booked.
type SlotPool struct {
	store    Store
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// NewSlotPool returns a pool over store. A nil logger or observer is replaced
// with a no-op.
func NewSlotPool(store Store, logger *zap.Logger, observer Observer) *SlotPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &SlotPool{
		store:    store,
		logger:   logger.Named("slotpool"),
		observer: observer,
		now:      time.Now,
	}
}

// within returns a copy of the pool bound to a transaction-scoped store.
func (p *SlotPool) within(tx Store) *SlotPool {
	cp := *p
	cp.store = tx
	return &cp
}

// Reserve claims slotID for bookingID. Of concurrent calls on the same free
// slot exactly one returns nil; the rest get ErrSlotAlreadyBooked.
func (p *SlotPool) Reserve(ctx context.Context, slotID, bookingID string) error {
	const op = "reserve"
	if strings.TrimSpace(slotID) == "" || strings.TrimSpace(bookingID) == "" {
		return wrap(op, Validation("slot_id and booking_id are required"))
	}

	err := p.store.MarkBooked(ctx, slotID, bookingID)
	p.observer.SlotReservation(outcome(err))
	if err != nil {
		if errors.Is(err, ErrSlotAlreadyBooked) {
			p.logger.Info("slot reservation lost", zap.String("slot_id", slotID), zap.String("booking_id", bookingID))
		}
		return wrap(op, err)
	}
	p.logger.Debug("slot reserved", zap.String("slot_id", slotID), zap.String("booking_id", bookingID))
	return nil
}

// Release frees slotID. Releasing a free slot is a no-op.
func (p *SlotPool) Release(ctx context.Context, slotID string) error {
	const op = "release"
	if strings.TrimSpace(slotID) == "" {
		return wrap(op, Validation("slot_id is required"))
	}
	if err := p.store.MarkFree(ctx, slotID); err != nil {
		return wrap(op, err)
	}
	p.logger.Debug("slot released", zap.String("slot_id", slotID))
	return nil
}

// ListAvailable returns free slots ordered by start time.
func (p *SlotPool) ListAvailable(ctx context.Context, f SlotFilter) ([]Slot, error) {
	f.OnlyFree = true
	return p.ListSlots(ctx, f)
}

// ListSlots returns slots, booked or not unless f.OnlyFree, ordered by start time.
func (p *SlotPool) ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, wrap("list slots", Validation("from must be before to"))
	}
	slots, err := p.store.ListSlots(ctx, f)
	if err != nil {
		return nil, wrap("list slots", err)
	}
	return slots, nil
}

func (p *SlotPool) Get(ctx context.Context, id string) (*Slot, error) {
	s, err := p.store.GetSlot(ctx, id)
	if err != nil {
		return nil, wrap("get slot", err)
	}
	return s, nil
}

// CreateSlot adds a single free slot.
func (p *SlotPool) CreateSlot(ctx context.Context, spec SlotSpec) (*Slot, error) {
	created, err := p.CreateSlots(ctx, []SlotSpec{spec}, false)
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateSlots adds free slots in one transaction. With skipExisting, specs
// colliding with an existing slot for the same interviewer and start time
// are dropped instead of failing the batch.
func (p *SlotPool) CreateSlots(ctx context.Context, specs []SlotSpec, skipExisting bool) ([]Slot, error) {
	const op = "create slots"
	specs = append([]SlotSpec(nil), specs...)
	for i, spec := range specs {
		if spec.StartTime.IsZero() {
			return nil, wrap(op, Validation("start_time is required"))
		}
		if strings.TrimSpace(spec.InterviewerName) == "" {
			return nil, wrap(op, Validation("interviewer_name is required"))
		}
		specs[i].InterviewerName = strings.TrimSpace(spec.InterviewerName)
	}

	var created []Slot
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		created = created[:0]
		for _, spec := range specs {
			if skipExisting {
				exists, err := tx.SlotExists(ctx, spec.InterviewerName, spec.StartTime)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
			}
			s := Slot{
				ID:              uuid.NewString(),
				StartTime:       spec.StartTime,
				InterviewerName: spec.InterviewerName,
				CreatedAt:       p.now().UTC(),
			}
			if err := tx.InsertSlot(ctx, &s); err != nil {
				return err
			}
			created = append(created, s)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	p.logger.Info("slots created", zap.Int("requested", len(specs)), zap.Int("created", len(created)))
	return created, nil
}

// DeleteSlot removes a free slot. Booked slots cannot be deleted.
func (p *SlotPool) DeleteSlot(ctx context.Context, id string) error {
	if err := p.store.DeleteFreeSlot(ctx, id); err != nil {
		return wrap("delete slot", err)
	}
	p.logger.Info("slot deleted", zap.String("slot_id", id))
	return nil
}

// Suggestion is a free slot offered in place of one that was taken.
type Suggestion struct {
	SlotID              string    `json:"slot_id"`
	StartTime           time.Time `json:"datetime"`
	InterviewerName     string    `json:"interviewer"`
	PreferenceScore     float64   `json:"preference_score"`
	TimeDifferenceHours float64   `json:"time_difference_hours"`
}

const (
	suggestBefore = 3 * 24 * time.Hour
	suggestAfter  = 7 * 24 * time.Hour
)

// Alternatives ranks free slots of the same interviewer near around, closest
// first. The score drops five points per hour of distance.
func (p *SlotPool) Alternatives(ctx context.Context, around time.Time, interviewer string, limit int) ([]Suggestion, error) {
	return p.AlternativesWhere(ctx, around, interviewer, limit, nil)
}

// AlternativesWhere is Alternatives limited to free slots accepted by keep.
// A nil keep accepts every free slot.
func (p *SlotPool) AlternativesWhere(ctx context.Context, around time.Time, interviewer string, limit int, keep func(Slot) bool) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}
	free, err := p.ListAvailable(ctx, SlotFilter{
		From:        around.Add(-suggestBefore),
		To:          around.Add(suggestAfter),
		Interviewer: interviewer,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Suggestion, 0, len(free))
	for _, s := range free {
		if keep != nil && !keep(s) {
			continue
		}
		diff := math.Abs(s.StartTime.Sub(around).Hours())
		out = append(out, Suggestion{
			SlotID:              s.ID,
			StartTime:           s.StartTime,
			InterviewerName:     s.InterviewerName,
			PreferenceScore:     round1(math.Max(0, 100-diff*5)),
			TimeDifferenceHours: round1(diff),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PreferenceScore != out[j].PreferenceScore {
			return out[i].PreferenceScore > out[j].PreferenceScore
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
