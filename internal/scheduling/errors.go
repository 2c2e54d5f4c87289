package scheduling

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies engine errors. The string value is the machine-readable
// code returned to clients.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindSlotNotFound      Kind = "SLOT_NOT_FOUND"
	KindBookingNotFound   Kind = "BOOKING_NOT_FOUND"
	KindSlotAlreadyBooked Kind = "SLOT_ALREADY_BOOKED"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindInternal          Kind = "INTERNAL_ERROR"
)

var defaultMessages = map[Kind]string{
	KindValidation:        "invalid request",
	KindSlotNotFound:      "slot not found",
	KindBookingNotFound:   "interview not found",
	KindSlotAlreadyBooked: "slot already booked",
	KindInvalidTransition: "interview is not in scheduled status",
	KindInternal:          "internal error",
}

// Error is the error type returned by SlotPool and BookingService.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error

	// Retryable is set on internal errors caused by store timeouts or lost
	// connections.
	Retryable bool
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Message is the human readable part of the error, without op or cause.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return defaultMessages[e.Kind]
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so callers can compare against the
// sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels returned by stores and matched with errors.Is.
var (
	ErrSlotNotFound      = &Error{Kind: KindSlotNotFound}
	ErrBookingNotFound   = &Error{Kind: KindBookingNotFound}
	ErrSlotAlreadyBooked = &Error{Kind: KindSlotAlreadyBooked}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
)

var (
	// ErrSlotExists is returned by stores when an interviewer already has a
	// slot at the given start time.
	ErrSlotExists = errors.New("slot already exists for interviewer at this start time")

	// ErrUnavailable is wrapped by stores around timeouts and connection
	// failures.
	ErrUnavailable = errors.New("store unavailable")
)

// Validation builds a validation error with the given message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// KindOf reports the Kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Retryable {
		return true
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// wrap annotates err with op. Domain errors keep their kind and message;
// anything else becomes an internal error.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return &Error{Kind: e.Kind, Op: op, Msg: e.Msg}
	}
	if errors.Is(err, ErrSlotExists) {
		return &Error{Kind: KindValidation, Op: op, Msg: ErrSlotExists.Error()}
	}
	if e != nil {
		return &Error{Kind: KindInternal, Op: op, Err: e.Err, Retryable: e.Retryable}
	}
	return &Error{
		Kind:      KindInternal,
		Op:        op,
		Err:       err,
		Retryable: errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded),
	}
}
