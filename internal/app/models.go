package app

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"interview-scheduler/internal/scheduling"
)

// flexID accepts an id sent as a JSON string or number. The dashboard sends
// both depending on where the value came from.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("id must be a string or a number")
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

type createInterviewReq struct {
	CandidateID     flexID `json:"candidate_id"`
	JobID           flexID `json:"job_id"`
	SlotID          flexID `json:"slot_id"`
	InterviewerName string `json:"interviewer_name"`
	MeetingLink     string `json:"meeting_link"`
	Notes           string `json:"notes"`
}

type rescheduleReq struct {
	NewSlotID       flexID  `json:"new_slot_id"`
	InterviewerName *string `json:"interviewer_name"`
	MeetingLink     *string `json:"meeting_link"`
}

// createSlotsReq is either a generation request (start_date, end_date,
// interviewer_name) or an explicit list of slots.
type createSlotsReq struct {
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	InterviewerName string `json:"interviewer_name"`
	Timezone        string `json:"timezone"`

	Slots []struct {
		StartTime       string `json:"start_time"`
		InterviewerName string `json:"interviewer_name"`
	} `json:"slots"`
}

// slotDTO carries start_time twice: older dashboard builds read
// slot_datetime.
type slotDTO struct {
	ID              string    `json:"id"`
	StartTime       time.Time `json:"start_time"`
	SlotDatetime    time.Time `json:"slot_datetime"`
	InterviewerName string    `json:"interviewer_name"`
	IsBooked        bool      `json:"is_booked"`
	BookingID       *string   `json:"booking_id"`
	CreatedAt       time.Time `json:"created_at"`
}

func toSlotDTO(s scheduling.Slot) slotDTO {
	return slotDTO{
		ID:              s.ID,
		StartTime:       s.StartTime,
		SlotDatetime:    s.StartTime,
		InterviewerName: s.InterviewerName,
		IsBooked:        s.IsBooked,
		BookingID:       s.BookingID,
		CreatedAt:       s.CreatedAt,
	}
}

func toSlotDTOs(slots []scheduling.Slot) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotDTO(s))
	}
	return out
}

// interviewDTO is an Interview decorated with directory names. Names are
// null when the directory cannot resolve them.
type interviewDTO struct {
	ID              string            `json:"id"`
	CandidateID     string            `json:"candidate_id"`
	CandidateName   *string           `json:"candidate_name"`
	JobID           string            `json:"job_id"`
	JobTitle        *string           `json:"job_title"`
	SlotID          string            `json:"slot_id"`
	InterviewerName string            `json:"interviewer_name"`
	ScheduledTime   time.Time         `json:"scheduled_time"`
	Status          scheduling.Status `json:"status"`
	MeetingLink     string            `json:"meeting_link"`
	Notes           string            `json:"notes"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
