package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"interview-scheduler/internal/metrics"
	"interview-scheduler/internal/scheduling"
	"interview-scheduler/internal/store/sqlite"
)

type stubDirectory struct {
	fail bool
}

func (d stubDirectory) Candidate(_ context.Context, id string) (*scheduling.Candidate, error) {
	if d.fail {
		return nil, errors.New("directory down")
	}
	if id == "42" {
		return &scheduling.Candidate{Name: "Ada Lovelace", Email: "ada@example.com"}, nil
	}
	return nil, scheduling.ErrNotInDirectory
}

func (d stubDirectory) JobTitle(_ context.Context, id string) (string, error) {
	if d.fail {
		return "", errors.New("directory down")
	}
	if id == "7" {
		return "Backend Engineer", nil
	}
	return "", scheduling.ErrNotInDirectory
}

type harness struct {
	t      *testing.T
	app    *App
	router *gin.Engine
}

func newHarness(t *testing.T, dir scheduling.Directory, cfg RouterConfig) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.Open(":memory:", 5*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	m := metrics.New()
	a, err := New(st, dir, scheduling.DefaultBusinessHours, m, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &harness{t: t, app: a, router: NewRouter(a, cfg, m)}
}

func (h *harness) do(method, path string, body any, header ...string) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				h.t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			h.t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, out
}

func (h *harness) slot(start time.Time, interviewer string) string {
	h.t.Helper()
	s, err := h.app.Slots.CreateSlot(context.Background(), scheduling.SlotSpec{StartTime: start, InterviewerName: interviewer})
	if err != nil {
		h.t.Fatalf("CreateSlot() error = %v", err)
	}
	return s.ID
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestCreateAndConflict(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})
	s1 := h.slot(t0, "Alice")
	h.slot(t0.Add(time.Hour), "Alice")

	code, body := h.do(http.MethodPost, "/schedule", map[string]any{
		"candidate_id": 42, "job_id": "7", "slot_id": s1, "meeting_link": "https://meet.example.com/a",
	})
	if code != http.StatusCreated {
		t.Fatalf("POST /schedule = %d %v, want 201", code, body)
	}
	iv := body["interview"].(map[string]any)
	if iv["candidate_id"] != "42" || iv["candidate_name"] != "Ada Lovelace" || iv["job_title"] != "Backend Engineer" {
		t.Errorf("interview = %v, want decorated candidate 42 / job 7", iv)
	}
	if iv["status"] != "scheduled" || iv["interviewer_name"] != "Alice" {
		t.Errorf("interview = %v, want scheduled with Alice", iv)
	}
	if body["interview_id"] != iv["id"] {
		t.Errorf("interview_id = %v, want %v", body["interview_id"], iv["id"])
	}

	code, body = h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "43", "job_id": 8, "slot_id": s1})
	if code != http.StatusConflict {
		t.Fatalf("second POST /schedule = %d, want 409", code)
	}
	if body["success"] != false || body["code"] != "SLOT_ALREADY_BOOKED" {
		t.Errorf("conflict body = %v", body)
	}
	if types, _ := body["conflict_types"].([]any); len(types) != 1 || types[0] != "interviewer_busy" {
		t.Errorf("conflict_types = %v, want [interviewer_busy]", body["conflict_types"])
	}
	alts, ok := body["alternatives"].([]any)
	if !ok || len(alts) != 1 {
		t.Fatalf("alternatives = %v, want one free slot", body["alternatives"])
	}
	if alt := alts[0].(map[string]any); alt["preference_score"] != 95.0 {
		t.Errorf("alternative = %v, want score 95", alt)
	}
}

func TestConflictReportsCandidateClash(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})
	alice10 := h.slot(t0, "Alice")
	alice11 := h.slot(t0.Add(time.Hour), "Alice")
	alice12 := h.slot(t0.Add(2*time.Hour), "Alice")
	bob1030 := h.slot(t0.Add(30*time.Minute), "Bob")

	h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "42", "job_id": "7", "slot_id": bob1030})
	h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "99", "job_id": "7", "slot_id": alice10})

	code, body := h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "42", "job_id": "8", "slot_id": alice10})
	if code != http.StatusConflict {
		t.Fatalf("POST /schedule = %d %v, want 409", code, body)
	}
	types, _ := body["conflict_types"].([]any)
	if len(types) != 2 || types[0] != "interviewer_busy" || types[1] != "candidate_busy" {
		t.Errorf("conflict_types = %v, want [interviewer_busy candidate_busy]", body["conflict_types"])
	}
	alts, _ := body["alternatives"].([]any)
	if len(alts) != 1 || alts[0].(map[string]any)["slot_id"] != alice12 {
		t.Errorf("alternatives = %v, want only %s (11:00 %s is too close to 10:30)", alts, alice12, alice11)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})
	s1 := h.slot(t0, "Alice")

	tests := []struct {
		name string
		body any
		code int
		kind string
	}{
		{"missing candidate", map[string]any{"job_id": "7", "slot_id": s1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", `{"candidate_id":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad id type", map[string]any{"candidate_id": true, "job_id": "7", "slot_id": s1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown slot", map[string]any{"candidate_id": "42", "job_id": "7", "slot_id": "nope"}, http.StatusNotFound, "SLOT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := h.do(http.MethodPost, "/schedule", tt.body)
			if code != tt.code || body["code"] != tt.kind {
				t.Errorf("POST /schedule = %d %v, want %d %s", code, body, tt.code, tt.kind)
			}
		})
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})
	s1 := h.slot(t0, "Alice")
	s2 := h.slot(t0.Add(2*time.Hour), "Bob")

	_, body := h.do(http.MethodPost, "/api/schedule", map[string]any{"candidate_id": "42", "job_id": "7", "slot_id": s1})
	id := body["interview"].(map[string]any)["id"].(string)

	code, body := h.do(http.MethodPut, "/schedule/"+id, map[string]any{"new_slot_id": s2})
	if code != http.StatusOK {
		t.Fatalf("PUT /schedule/%s = %d %v, want 200", id, code, body)
	}
	iv := body["interview"].(map[string]any)
	if iv["slot_id"] != s2 || iv["interviewer_name"] != "Bob" {
		t.Errorf("rescheduled interview = %v, want slot %s with Bob", iv, s2)
	}

	code, body = h.do(http.MethodGet, "/schedule/"+id, nil)
	if code != http.StatusOK || body["interview"].(map[string]any)["slot_id"] != s2 {
		t.Errorf("GET /schedule/%s = %d %v", id, code, body)
	}

	code, body = h.do(http.MethodDelete, "/schedule/"+id, nil)
	if code != http.StatusOK || body["success"] != true || body["message"] == "" {
		t.Errorf("DELETE /schedule/%s = %d %v, want 200 success", id, code, body)
	}

	code, body = h.do(http.MethodDelete, "/schedule/"+id, nil)
	if code != http.StatusConflict || body["code"] != "INVALID_TRANSITION" {
		t.Errorf("second DELETE = %d %v, want 409 INVALID_TRANSITION", code, body)
	}

	code, body = h.do(http.MethodPost, "/schedule/"+id+"/complete", nil)
	if code != http.StatusConflict || body["code"] != "INVALID_TRANSITION" {
		t.Errorf("complete cancelled = %d %v, want 409 INVALID_TRANSITION", code, body)
	}

	code, body = h.do(http.MethodGet, "/schedule/unknown", nil)
	if code != http.StatusNotFound || body["code"] != "BOOKING_NOT_FOUND" {
		t.Errorf("GET unknown = %d %v, want 404 BOOKING_NOT_FOUND", code, body)
	}

	code, body = h.do(http.MethodGet, "/schedule/slots?available=true", nil)
	if code != http.StatusOK || len(body["slots"].([]any)) != 2 {
		t.Errorf("available slots after cancel = %v, want 2", body["slots"])
	}
}

func TestCompleteOverHTTP(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})
	s1 := h.slot(t0, "Alice")
	_, body := h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "42", "job_id": "7", "slot_id": s1})
	id := body["interview"].(map[string]any)["id"].(string)

	code, body := h.do(http.MethodPost, "/schedule/"+id+"/complete", nil)
	if code != http.StatusOK || body["interview"].(map[string]any)["status"] != "completed" {
		t.Errorf("complete = %d %v, want 200 completed", code, body)
	}
}

func TestListSlots(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})
	s1 := h.slot(t0, "Alice")
	h.slot(t0.Add(time.Hour), "Bob")
	h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "42", "job_id": "7", "slot_id": s1})

	tests := []struct {
		query string
		code  int
		want  int
	}{
		{"", http.StatusOK, 2},
		{"?available=true", http.StatusOK, 1},
		{"?available=false", http.StatusOK, 2},
		{"?interviewer_name=Bob", http.StatusOK, 1},
		{"?from=2024-03-01T10:30:00Z", http.StatusOK, 1},
		{"?available=maybe", http.StatusBadRequest, 0},
		{"?from=yesterday", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, body := h.do(http.MethodGet, "/schedule/slots"+tt.query, nil)
			if code != tt.code {
				t.Fatalf("GET /schedule/slots%s = %d, want %d", tt.query, code, tt.code)
			}
			if code != http.StatusOK {
				return
			}
			slots := body["slots"].([]any)
			if len(slots) != tt.want {
				t.Errorf("slots = %d, want %d", len(slots), tt.want)
			}
		})
	}

	_, body := h.do(http.MethodGet, "/schedule/slots", nil)
	first := body["slots"].([]any)[0].(map[string]any)
	if first["start_time"] != "2024-03-01T10:00:00Z" || first["slot_datetime"] != first["start_time"] {
		t.Errorf("slot times = %v / %v", first["start_time"], first["slot_datetime"])
	}
	if first["is_booked"] != true {
		t.Errorf("first slot is_booked = %v, want true", first["is_booked"])
	}
}

func TestCreateAndDeleteSlots(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})

	code, body := h.do(http.MethodPost, "/schedule/slots", map[string]any{
		"start_date": "2024-03-01", "end_date": "2024-03-04", "interviewer_name": "Alice",
	})
	if code != http.StatusCreated || body["slots_created"] != 16.0 {
		t.Fatalf("generate = %d %v, want 201 with 16 slots", code, body["slots_created"])
	}

	code, body = h.do(http.MethodPost, "/schedule/slots", map[string]any{
		"slots": []map[string]string{{"start_time": "2024-03-05T15:00:00+02:00", "interviewer_name": "Bob"}},
	})
	if code != http.StatusCreated || body["slots_created"] != 1.0 {
		t.Fatalf("explicit create = %d %v, want 201 with 1 slot", code, body)
	}
	id := body["slot_ids"].([]any)[0].(string)

	code, body = h.do(http.MethodPost, "/schedule/slots", map[string]any{
		"slots": []map[string]string{{"start_time": "2024-03-05T15:00:00+02:00", "interviewer_name": "Bob"}},
	})
	if code != http.StatusBadRequest {
		t.Errorf("duplicate create = %d %v, want 400", code, body)
	}

	code, _ = h.do(http.MethodPost, "/schedule/slots", map[string]any{"start_date": "soon", "end_date": "later", "interviewer_name": "Alice"})
	if code != http.StatusBadRequest {
		t.Errorf("bad dates = %d, want 400", code)
	}

	code, body = h.do(http.MethodDelete, "/schedule/slots/"+id, nil)
	if code != http.StatusOK || body["success"] != true {
		t.Errorf("DELETE slot = %d %v, want 200", code, body)
	}
	code, body = h.do(http.MethodDelete, "/schedule/slots/"+id, nil)
	if code != http.StatusNotFound || body["code"] != "SLOT_NOT_FOUND" {
		t.Errorf("DELETE deleted slot = %d %v, want 404", code, body)
	}
}

func TestListSchedule(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})
	s1 := h.slot(t0, "Alice")
	s2 := h.slot(t0.Add(24*time.Hour), "Alice")
	h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "42", "job_id": "7", "slot_id": s1})
	h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "99", "job_id": "7", "slot_id": s2})

	code, body := h.do(http.MethodGet, "/schedule?date=2024-03-01", nil)
	if code != http.StatusOK {
		t.Fatalf("GET /schedule = %d %v", code, body)
	}
	sched := body["schedule"].([]any)
	if len(sched) != 1 {
		t.Fatalf("schedule = %d entries, want 1", len(sched))
	}
	if e := sched[0].(map[string]any); e["candidate_name"] != "Ada Lovelace" {
		t.Errorf("entry = %v, want candidate_name", e)
	}

	_, body = h.do(http.MethodGet, "/schedule", nil)
	all := body["schedule"].([]any)
	if len(all) != 2 {
		t.Fatalf("schedule without date = %d entries, want 2", len(all))
	}
	if e := all[1].(map[string]any); e["candidate_name"] != nil {
		t.Errorf("unknown candidate name = %v, want null", e["candidate_name"])
	}

	code, body = h.do(http.MethodGet, "/schedule?date=01-03-2024", nil)
	if code != http.StatusBadRequest || body["code"] != "VALIDATION_ERROR" {
		t.Errorf("bad date = %d %v, want 400", code, body)
	}
}

func TestDirectoryFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, stubDirectory{fail: true}, RouterConfig{})
	s1 := h.slot(t0, "Alice")

	code, body := h.do(http.MethodPost, "/schedule", map[string]any{"candidate_id": "42", "job_id": "7", "slot_id": s1})
	if code != http.StatusCreated {
		t.Fatalf("POST /schedule = %d %v, want 201", code, body)
	}
	iv := body["interview"].(map[string]any)
	if iv["candidate_name"] != nil || iv["job_title"] != nil {
		t.Errorf("names = %v / %v, want null", iv["candidate_name"], iv["job_title"])
	}
}

func TestAuth(t *testing.T) {
	secret := "test-secret"
	h := newHarness(t, stubDirectory{}, RouterConfig{JWTSecret: secret, StaticTokens: []string{"static-token"}})

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "recruiter-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name   string
		header []string
		code   int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic abc"}, http.StatusUnauthorized},
		{"bad token", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"static token", []string{"Authorization", "Bearer static-token"}, http.StatusOK},
		{"jwt", []string{"Authorization", "Bearer " + signed}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := h.do(http.MethodGet, "/schedule/slots", nil, tt.header...)
			if code != tt.code {
				t.Errorf("GET /schedule/slots = %d, want %d", code, tt.code)
			}
		})
	}

	if code, _ := h.do(http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200 without auth", code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{MaxRequestsPerMin: 6})

	// burst is perMinute/6 = 1
	if code, _ := h.do(http.MethodGet, "/schedule/slots", nil); code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", code)
	}
	code, body := h.do(http.MethodGet, "/schedule/slots", nil)
	if code != http.StatusTooManyRequests || body["code"] != "RATE_LIMITED" {
		t.Errorf("second request = %d %v, want 429", code, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, stubDirectory{}, RouterConfig{})

	code, body := h.do(http.MethodGet, "/health", nil)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("GET /health = %d %v", code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("scheduler_http_requests_total")) {
		t.Errorf("GET /metrics = %d, missing request counter", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{scheduling.Validation("x"), http.StatusBadRequest},
		{scheduling.ErrSlotNotFound, http.StatusNotFound},
		{scheduling.ErrBookingNotFound, http.StatusNotFound},
		{scheduling.ErrSlotAlreadyBooked, http.StatusConflict},
		{scheduling.ErrInvalidTransition, http.StatusConflict},
		{&scheduling.Error{Kind: scheduling.KindInternal, Retryable: true}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFlexID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`"abc"`, "abc", false},
		{`" 12 "`, "12", false},
		{`42`, "42", false},
		{`null`, "", false},
		{`true`, "", true},
		{`{}`, "", true},
	}
	for _, tt := range tests {
		var id flexID
		err := json.Unmarshal([]byte(tt.in), &id)
		if (err != nil) != tt.wantErr || (!tt.wantErr && id.String() != tt.want) {
			t.Errorf("Unmarshal(%s) = %q, %v; want %q, wantErr %v", tt.in, id, err, tt.want, tt.wantErr)
		}
	}
}
