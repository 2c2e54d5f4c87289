package scheduling

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an interview booking.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Slot is a fixed interviewer time window. IsBooked and BookingID only ever
// change through SlotPool.
type Slot struct {
	ID              string    `json:"id"`
	StartTime       time.Time `json:"start_time"`
	InterviewerName string    `json:"interviewer_name"`
	IsBooked        bool      `json:"is_booked"`
	BookingID       *string   `json:"booking_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Interview is a candidate/job pair assigned to a slot.
type Interview struct {
	ID              string    `json:"id"`
	CandidateID     string    `json:"candidate_id"`
	JobID           string    `json:"job_id"`
	SlotID          string    `json:"slot_id"`
	InterviewerName string    `json:"interviewer_name"`
	MeetingLink     string    `json:"meeting_link"`
	Notes           string    `json:"notes"`
	Status          Status    `json:"status"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SlotSpec describes a slot to be created.
type SlotSpec struct {
	StartTime       time.Time `json:"start_time"`
	InterviewerName string    `json:"interviewer_name"`
}

// SlotFilter narrows slot listings. Zero values mean "no bound".
type SlotFilter struct {
	From        time.Time
	To          time.Time
	Interviewer string
	OnlyFree    bool
}

// InterviewFilter narrows interview listings. Date is a calendar date in
// YYYY-MM-DD form evaluated in the offset the scheduled time was given in.
// From and To bound the scheduled time inclusively; zero means no bound.
type InterviewFilter struct {
	Date        string
	Status      Status
	Interviewer string
	CandidateID string
	From        time.Time
	To          time.Time
}

const dateLayout = "2006-01-02"

// CalendarDate returns the YYYY-MM-DD date of t in its own offset.
func CalendarDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", Validation("date must be YYYY-MM-DD")
	}
	return d.Format(dateLayout), nil
}
