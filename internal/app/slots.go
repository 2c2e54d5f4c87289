package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"interview-scheduler/internal/scheduling"
)

// GET /schedule/slots?available=true&from=ISO&to=ISO&interviewer_name=
// All slots are listed unless available=true.
func (a *App) ListSlotsHandler(c *gin.Context) {
	var f scheduling.SlotFilter
	f.Interviewer = strings.TrimSpace(c.Query("interviewer_name"))

	if v := c.Query("available"); v != "" {
		onlyFree, err := strconv.ParseBool(v)
		if err != nil {
			a.respondError(c, badRequest("available must be true or false"))
			return
		}
		f.OnlyFree = onlyFree
	}
	var err error
	if f.From, err = parseQueryTime(c, "from"); err != nil {
		a.respondError(c, err)
		return
	}
	if f.To, err = parseQueryTime(c, "to"); err != nil {
		a.respondError(c, err)
		return
	}

	var slots []scheduling.Slot
	if f.OnlyFree {
		slots, err = a.Slots.ListAvailable(c.Request.Context(), f)
	} else {
		slots, err = a.Slots.ListSlots(c.Request.Context(), f)
	}
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "slots": toSlotDTOs(slots)})
}

// POST /schedule/slots
// Body {start_date, end_date, interviewer_name[, timezone]} generates weekday
// business-hour slots; body {slots:[{start_time, interviewer_name}]} adds
// the listed ones.
func (a *App) CreateSlotsHandler(c *gin.Context) {
	var req createSlotsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, badRequest("invalid request body: "+err.Error()))
		return
	}
	ctx := c.Request.Context()

	var (
		created []scheduling.Slot
		err     error
	)
	if len(req.Slots) > 0 {
		specs := make([]scheduling.SlotSpec, 0, len(req.Slots))
		for _, s := range req.Slots {
			start, perr := time.Parse(time.RFC3339, strings.TrimSpace(s.StartTime))
			if perr != nil {
				a.respondError(c, badRequest("start_time must be RFC3339: "+s.StartTime))
				return
			}
			specs = append(specs, scheduling.SlotSpec{StartTime: start, InterviewerName: s.InterviewerName})
		}
		created, err = a.Slots.CreateSlots(ctx, specs, false)
	} else {
		var loc *time.Location
		if tz := strings.TrimSpace(req.Timezone); tz != "" {
			if loc, err = time.LoadLocation(tz); err != nil {
				a.respondError(c, badRequest("unknown timezone "+tz))
				return
			}
		}
		from, ferr := parseDateOrTime(req.StartDate, loc)
		to, terr := parseDateOrTime(req.EndDate, loc)
		if ferr != nil || terr != nil {
			a.respondError(c, badRequest("start_date and end_date must be YYYY-MM-DD or RFC3339"))
			return
		}
		created, err = a.Generator.Generate(ctx, from, to, req.InterviewerName)
	}
	if err != nil {
		a.respondError(c, err)
		return
	}

	ids := make([]string, 0, len(created))
	for _, s := range created {
		ids = append(ids, s.ID)
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"slots_created": len(created),
		"slot_ids":      ids,
		"slots":         toSlotDTOs(created),
	})
}

// DELETE /schedule/slots/:id
func (a *App) DeleteSlotHandler(c *gin.Context) {
	if err := a.Slots.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Slot deleted"})
}

func parseQueryTime(c *gin.Context, key string) (time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequest("invalid " + key + " (RFC3339 expected)")
	}
	return t, nil
}

// parseDateOrTime accepts a calendar date, taken as midnight in loc (UTC
// when loc is nil), or an RFC3339 timestamp, moved into loc when given.
func parseDateOrTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	dateLoc := loc
	if dateLoc == nil {
		dateLoc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02", s, dateLoc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t, nil
}
