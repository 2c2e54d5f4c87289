package scheduling

import (
	"context"
	"time"
)

// SlotStore persists interview slots.
//
// MarkBooked must be a single compare-and-set: it succeeds only when the slot
// is currently free, and returns ErrSlotAlreadyBooked or ErrSlotNotFound
// otherwise. MarkFree clears the booking and succeeds on an already-free slot.
type SlotStore interface {
	InsertSlot(ctx context.Context, s *Slot) error
	GetSlot(ctx context.Context, id string) (*Slot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error)
	SlotExists(ctx context.Context, interviewer string, start time.Time) (bool, error)
	DeleteFreeSlot(ctx context.Context, id string) error
	MarkBooked(ctx context.Context, slotID, bookingID string) error
	MarkFree(ctx context.Context, slotID string) error
}

// BookingStore persists interviews. GetInterview with forUpdate locks the
// row until the surrounding transaction ends where the backend supports it.
type BookingStore interface {
	InsertInterview(ctx context.Context, iv *Interview) error
	GetInterview(ctx context.Context, id string, forUpdate bool) (*Interview, error)
	UpdateInterview(ctx context.Context, iv *Interview) error
	ListInterviews(ctx context.Context, f InterviewFilter) ([]Interview, error)
}

// Store is the durable backing for the engine. WithinTx runs fn inside one
// transaction; the Store handed to fn is bound to it and must be the only
// store fn uses. Calling WithinTx on a bound Store runs fn in the same
// transaction.
type Store interface {
	SlotStore
	BookingStore
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Ping(ctx context.Context) error
}

// Observer receives operation outcomes, typically for metrics.
type Observer interface {
	BookingOp(op, outcome string)
	SlotReservation(outcome string)
}

type nopObserver struct{}

func (nopObserver) BookingOp(string, string) {}
func (nopObserver) SlotReservation(string) {}

// outcome maps an operation result to a metrics label.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}
