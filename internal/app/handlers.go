package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interview-scheduler/internal/scheduling"
)

const maxAlternatives = 5

// GET /schedule?date=YYYY-MM-DD&status=&interviewer_name=
// Without date every interview matching the other filters is returned.
func (a *App) ListScheduleHandler(c *gin.Context) {
	ctx := c.Request.Context()
	f := scheduling.InterviewFilter{
		Status:      scheduling.Status(strings.TrimSpace(c.Query("status"))),
		Interviewer: strings.TrimSpace(c.Query("interviewer_name")),
	}

	var (
		ivs []scheduling.Interview
		err error
	)
	if date := strings.TrimSpace(c.Query("date")); date != "" {
		ivs, err = a.Bookings.ListForDate(ctx, date, f)
	} else {
		ivs, err = a.Bookings.List(ctx, f)
	}
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "schedule": a.present(ctx, ivs)})
}

// GET /schedule/:id
func (a *App) GetInterviewHandler(c *gin.Context) {
	ctx := c.Request.Context()
	iv, err := a.Bookings.Get(ctx, c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "interview": a.present(ctx, []scheduling.Interview{*iv})[0]})
}

// POST /schedule
func (a *App) CreateInterviewHandler(c *gin.Context) {
	var req createInterviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	ctx := c.Request.Context()
	iv, err := a.Bookings.Create(ctx, scheduling.CreateRequest{
		CandidateID:     req.CandidateID.String(),
		JobID:           req.JobID.String(),
		SlotID:          req.SlotID.String(),
		InterviewerName: req.InterviewerName,
		MeetingLink:     req.MeetingLink,
		Notes:           req.Notes,
	})
	if err != nil {
		a.respondConflict(c, err, scheduling.SuggestRequest{
			SlotID:      req.SlotID.String(),
			CandidateID: req.CandidateID.String(),
		})
		return
	}

	out := a.present(ctx, []scheduling.Interview{*iv})[0]
	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"interview":      out,
		"interview_id":   out.ID,
		"scheduled_time": out.ScheduledTime,
		"interviewer":    out.InterviewerName,
		"meeting_link":   out.MeetingLink,
	})
}

// PUT /schedule/:id
func (a *App) RescheduleInterviewHandler(c *gin.Context) {
	var req rescheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	iv, err := a.Bookings.Reschedule(ctx, id, scheduling.RescheduleRequest{
		NewSlotID:       req.NewSlotID.String(),
		InterviewerName: req.InterviewerName,
		MeetingLink:     req.MeetingLink,
	})
	if err != nil {
		sreq := scheduling.SuggestRequest{SlotID: req.NewSlotID.String(), ExcludeInterviewID: id}
		if cur, gerr := a.Bookings.Get(ctx, id); gerr == nil {
			sreq.CandidateID = cur.CandidateID
		}
		a.respondConflict(c, err, sreq)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "interview": a.present(ctx, []scheduling.Interview{*iv})[0]})
}

// DELETE /schedule/:id
func (a *App) CancelInterviewHandler(c *gin.Context) {
	iv, err := a.Bookings.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Interview cancelled",
		"slot_id": iv.SlotID,
	})
}

// POST /schedule/:id/complete
func (a *App) CompleteInterviewHandler(c *gin.Context) {
	ctx := c.Request.Context()
	iv, err := a.Bookings.Complete(ctx, c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "interview": a.present(ctx, []scheduling.Interview{*iv})[0]})
}

// respondConflict adds the conflict types and free alternatives for the
// candidate when the requested slot was taken.
func (a *App) respondConflict(c *gin.Context, err error, req scheduling.SuggestRequest) {
	if !errors.Is(err, scheduling.ErrSlotAlreadyBooked) {
		a.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	req.Limit = maxAlternatives

	types, cerr := a.Bookings.Conflicts(ctx, req.SlotID, req.CandidateID, req.ExcludeInterviewID)
	if cerr != nil {
		a.Logger.Warn("conflict lookup failed", zap.String("slot_id", req.SlotID), zap.Error(cerr))
		types = []string{scheduling.ConflictInterviewerBusy}
	}
	alts, serr := a.Bookings.Suggest(ctx, req)
	if serr != nil {
		a.Logger.Warn("alternative lookup failed", zap.String("slot_id", req.SlotID), zap.Error(serr))
		alts = []scheduling.Suggestion{}
	}
	a.respondErrorWith(c, err, gin.H{"conflict_types": types, "alternatives": alts})
}

// present decorates interviews with candidate names and job titles. Lookup
// failures leave the field null.
func (a *App) present(ctx context.Context, ivs []scheduling.Interview) []interviewDTO {
	names := map[string]*string{}
	titles := map[string]*string{}

	out := make([]interviewDTO, 0, len(ivs))
	for _, iv := range ivs {
		name, ok := names[iv.CandidateID]
		if !ok {
			name = a.candidateName(ctx, iv.CandidateID)
			names[iv.CandidateID] = name
		}
		title, ok := titles[iv.JobID]
		if !ok {
			title = a.jobTitle(ctx, iv.JobID)
			titles[iv.JobID] = title
		}
		out = append(out, interviewDTO{
			ID:              iv.ID,
			CandidateID:     iv.CandidateID,
			CandidateName:   name,
			JobID:           iv.JobID,
			JobTitle:        title,
			SlotID:          iv.SlotID,
			InterviewerName: iv.InterviewerName,
			ScheduledTime:   iv.ScheduledTime,
			Status:          iv.Status,
			MeetingLink:     iv.MeetingLink,
			Notes:           iv.Notes,
			CreatedAt:       iv.CreatedAt,
			UpdatedAt:       iv.UpdatedAt,
		})
	}
	return out
}

func (a *App) candidateName(ctx context.Context, id string) *string {
	cand, err := a.Directory.Candidate(ctx, id)
	if err != nil {
		if !errors.Is(err, scheduling.ErrNotInDirectory) {
			a.Logger.Warn("candidate lookup failed", zap.String("candidate_id", id), zap.Error(err))
		}
		return nil
	}
	return &cand.Name
}

func (a *App) jobTitle(ctx context.Context, id string) *string {
	title, err := a.Directory.JobTitle(ctx, id)
	if err != nil {
		if !errors.Is(err, scheduling.ErrNotInDirectory) {
			a.Logger.Warn("job lookup failed", zap.String("job_id", id), zap.Error(err))
		}
		return nil
	}
	return &title
}
