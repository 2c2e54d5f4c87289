package scheduling

import (
	"context"
	"time"
)

// Conflict types reported with a rejected booking.
const (
	ConflictInterviewerBusy      = "interviewer_busy"
	ConflictCandidateBusy        = "candidate_busy"
	ConflictOutsideBusinessHours = "outside_business_hours"
)

// A candidate's interviews must start at least one interview length plus
// the buffer apart.
const (
	DefaultInterviewLength = time.Hour
	DefaultInterviewBuffer = 15 * time.Minute
)

// WithCandidateSpacing sets the minimum distance between the start times of
// one candidate's scheduled interviews.
func WithCandidateSpacing(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.spacing = d
		}
	}
}

// WithBusinessHours makes slots outside h a conflict.
func WithBusinessHours(h BusinessHours) Option {
	return func(s *BookingService) { s.hours = &h }
}

// SuggestRequest asks for free alternatives to SlotID. When CandidateID is
// set, slots too close to that candidate's other scheduled interviews are
// left out; ExcludeInterviewID names the interview being moved, which does
// not count against itself.
type SuggestRequest struct {
	SlotID             string
	CandidateID        string
	ExcludeInterviewID string
	Limit              int
}

// Suggest offers free alternatives to a slot from the same interviewer that
// raise no conflict for the candidate.
func (s *BookingService) Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	slot, err := s.pool.Get(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	busy, err := s.candidateSchedule(ctx, req.CandidateID, req.ExcludeInterviewID,
		slot.StartTime.Add(-suggestBefore), slot.StartTime.Add(suggestAfter))
	if err != nil {
		return nil, wrap("suggest", err)
	}
	return s.pool.AlternativesWhere(ctx, slot.StartTime, slot.InterviewerName, req.Limit, func(c Slot) bool {
		if s.hours != nil && !s.hours.Contains(c.StartTime) {
			return false
		}
		return s.closest(c.StartTime, busy) == nil
	})
}

// Conflicts lists what stands between candidateID and slotID. An empty
// result means the slot can be booked. excludeInterviewID is skipped when
// looking at the candidate's schedule.
func (s *BookingService) Conflicts(ctx context.Context, slotID, candidateID, excludeInterviewID string) ([]string, error) {
	slot, err := s.pool.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}

	out := []string{}
	if slot.IsBooked {
		out = append(out, ConflictInterviewerBusy)
	}
	busy, err := s.candidateSchedule(ctx, candidateID, excludeInterviewID, slot.StartTime, slot.StartTime)
	if err != nil {
		return nil, wrap("conflicts", err)
	}
	if s.closest(slot.StartTime, busy) != nil {
		out = append(out, ConflictCandidateBusy)
	}
	if s.hours != nil && !s.hours.Contains(slot.StartTime) {
		out = append(out, ConflictOutsideBusinessHours)
	}
	return out, nil
}

// candidateSchedule returns the candidate's scheduled interviews that could
// clash with a start time in [from, to].
func (s *BookingService) candidateSchedule(ctx context.Context, candidateID, excludeID string, from, to time.Time) ([]Interview, error) {
	if candidateID == "" {
		return nil, nil
	}
	ivs, err := s.store.ListInterviews(ctx, InterviewFilter{
		CandidateID: candidateID,
		Status:      StatusScheduled,
		From:        from.Add(-s.spacing),
		To:          to.Add(s.spacing),
	})
	if err != nil {
		return nil, err
	}
	out := ivs[:0]
	for _, iv := range ivs {
		if iv.ID != excludeID {
			out = append(out, iv)
		}
	}
	return out, nil
}

// closest returns the first interview starting less than the candidate
// spacing away from at, or nil.
func (s *BookingService) closest(at time.Time, ivs []Interview) *Interview {
	for i := range ivs {
		d := at.Sub(ivs[i].ScheduledTime)
		if d < 0 {
			d = -d
		}
		if d < s.spacing {
			return &ivs[i]
		}
	}
	return nil
}
