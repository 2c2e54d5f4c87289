package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BusinessHours bounds generated slots. Start and End are hours of the day
// in the location of the requested range; slots never run past End.
type BusinessHours struct {
	Start      int
	End        int
	SlotLength time.Duration
}

// DefaultBusinessHours is 09:00-17:00 in one-hour slots.
var DefaultBusinessHours = BusinessHours{Start: 9, End: 17, SlotLength: time.Hour}

func (h BusinessHours) validate() error {
	if h.Start < 0 || h.End > 24 || h.Start >= h.End {
		return fmt.Errorf("business hours %d-%d are invalid", h.Start, h.End)
	}
	if h.SlotLength <= 0 || h.SlotLength > time.Duration(h.End-h.Start)*time.Hour {
		return fmt.Errorf("slot length %s does not fit business hours", h.SlotLength)
	}
	return nil
}

// Contains reports whether t falls on a weekday between Start and End,
// evaluated in t's own location.
func (h BusinessHours) Contains(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	open := day.Add(time.Duration(h.Start) * time.Hour)
	closing := day.Add(time.Duration(h.End) * time.Hour)
	return !t.Before(open) && t.Before(closing)
}

// maxGenerateDays caps a single generation request.
const maxGenerateDays = 92

// Generator expands a date range into weekday business-hour slots for one
// interviewer.
type Generator struct {
	pool  *SlotPool
	hours BusinessHours
}

func NewGenerator(pool *SlotPool, hours BusinessHours) (*Generator, error) {
	if err := hours.validate(); err != nil {
		return nil, err
	}
	return &Generator{pool: pool, hours: hours}, nil
}

// Plan lists the slot specs for every weekday between the calendar dates of
// from and to, inclusive. Times are built in from's location.
func (g *Generator) Plan(from, to time.Time, interviewer string) ([]SlotSpec, error) {
	interviewer = strings.TrimSpace(interviewer)
	if interviewer == "" {
		return nil, Validation("interviewer_name is required")
	}
	if from.IsZero() || to.IsZero() {
		return nil, Validation("start_date and end_date are required")
	}

	loc := from.Location()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	to = to.In(loc)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)
	if last.Before(day) {
		return nil, Validation("end_date must not be before start_date")
	}
	if last.Sub(day) > maxGenerateDays*24*time.Hour {
		return nil, Validation(fmt.Sprintf("date range may span at most %d days", maxGenerateDays))
	}

	var specs []SlotSpec
	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := day.Add(time.Duration(g.hours.Start) * time.Hour)
		closing := day.Add(time.Duration(g.hours.End) * time.Hour)
		for t := open; !t.Add(g.hours.SlotLength).After(closing); t = t.Add(g.hours.SlotLength) {
			specs = append(specs, SlotSpec{StartTime: t, InterviewerName: interviewer})
		}
	}
	return specs, nil
}

// Generate creates the planned slots, skipping any the interviewer already has.
func (g *Generator) Generate(ctx context.Context, from, to time.Time, interviewer string) ([]Slot, error) {
	specs, err := g.Plan(from, to, interviewer)
	if err != nil {
		return nil, wrap("generate slots", err)
	}
	if len(specs) == 0 {
		return []Slot{}, nil
	}
	return g.pool.CreateSlots(ctx, specs, true)
}
