package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/attendify/attendance-server-go/internal/errors"
	"github.com/attendify/attendance-server-go/internal/middleware"
	"github.com/attendify/attendance-server-go/internal/model"
	"github.com/attendify/attendance-server-go/internal/service"
)

type SessionHandler struct {
	sessionService  *service.SessionService
	passcodeService *service.PasscodeService
	adminGate       *middleware.AdminMiddleware
	events          *EventsHandler
}

func NewSessionHandler(
	sessionService *service.SessionService,
	passcodeService *service.PasscodeService,
	adminGate *middleware.AdminMiddleware,
	events *EventsHandler,
) *SessionHandler {
	return &SessionHandler{
		sessionService:  sessionService,
		passcodeService: passcodeService,
		adminGate:       adminGate,
		events:          events,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	teacherOnly := middleware.RequireRole(model.RoleTeacher, model.RoleAdmin)

	r.Get("/", h.ListSessions)
	r.With(teacherOnly).Post("/adhoc", h.CreateAdHoc)
	r.With(teacherOnly).Post("/derive-week", h.DeriveWeek)
	r.Get("/teacher/{teacherId}", h.ListForTeacher)
	r.Get("/student/{studentId}", h.ListForStudent)
	r.Get("/history/{studentId}", h.History)
	r.Get("/{id}", h.GetSession)
	r.Get("/{id}/events", h.events.ServeHTTP)
	r.With(teacherOnly).Patch("/{id}/status", h.UpdateStatus)
	r.With(teacherOnly).Post("/{id}/passcode", h.IssuePasscode)
	r.With(teacherOnly).Patch("/{id}/passcode", h.AdjustPasscode)

	return r
}

type createAdHocRequest struct {
	CourseCode      string `json:"courseCode"`
	CourseName      string `json:"courseName"`
	Room            string `json:"room"`
	DurationMinutes int    `json:"durationMinutes"`
}

// POST /v1/sessions/adhoc
func (h *SessionHandler) CreateAdHoc(w http.ResponseWriter, r *http.Request) {
	var req createAdHocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.CourseCode == "" {
		writeError(w, apperrors.MissingRequired("courseCode"))
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 60
	}

	now := time.Now()
	session, err := h.sessionService.CreateAdHoc(r.Context(), middleware.GetUser(r.Context()), service.CreateAdHocParams{
		CourseCode: req.CourseCode,
		CourseName: req.CourseName,
		Room:       req.Room,
		StartTime:  now,
		EndTime:    now.Add(time.Duration(req.DurationMinutes) * time.Minute),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"session": session,
	})
}

type deriveWeekRequest struct {
	Date string `json:"date"` // YYYY-MM-DD, defaults to today
}

// POST /v1/sessions/derive-week
func (h *SessionHandler) DeriveWeek(w http.ResponseWriter, r *http.Request) {
	var req deriveWeekRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	at := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, apperrors.InvalidInput("date", "expected YYYY-MM-DD"))
			return
		}
		at = parsed
	}

	created, err := h.sessionService.DeriveWeek(r.Context(), at)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"created": created,
	})
}

// GET /v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r)

	details, err := h.sessionService.ListAll(r.Context(), page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatSessionList(details))
}

// GET /v1/sessions/teacher/{teacherId}
func (h *SessionHandler) ListForTeacher(w http.ResponseWriter, r *http.Request) {
	teacherID := chi.URLParam(r, "teacherId")
	page := ParsePagination(r)

	details, err := h.sessionService.ListForTeacher(r.Context(), teacherID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatSessionList(details))
}

// GET /v1/sessions/student/{studentId}
//
// Students see the full schedule; the client filters what is relevant to
// them, so this is the same listing as /v1/sessions.
func (h *SessionHandler) ListForStudent(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r)

	details, err := h.sessionService.ListAll(r.Context(), page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatSessionList(details))
}

// GET /v1/sessions/history/{studentId}
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentId")

	user := middleware.GetUser(r.Context())
	if user != nil && user.Role == model.RoleStudent && user.ID != studentID {
		writeError(w, apperrors.Forbidden("Students can only view their own history"))
		return
	}

	entries, err := h.sessionService.HistoryForStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, formatHistory(entry))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := h.sessionService.GetDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSessionDetail(*detail))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// PATCH /v1/sessions/{id}/status
func (h *SessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	status := model.SessionStatus(req.Status)

	// Rolling back to scheduled wipes the roster, so it takes admin
	// credentials on top of the teacher token.
	if status == model.SessionStatusScheduled {
		if err := h.adminGate.Verify(r); err != nil {
			writeError(w, err)
			return
		}
	}

	session, err := h.sessionService.UpdateStatus(r.Context(), middleware.GetUser(r.Context()), sessionID, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

type issuePasscodeRequest struct {
	DurationSeconds int `json:"durationSeconds"`
}

// POST /v1/sessions/{id}/passcode
func (h *SessionHandler) IssuePasscode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req issuePasscodeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.passcodeService.Issue(r.Context(), middleware.GetUser(r.Context()), sessionID, req.DurationSeconds)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().Str("sessionId", sessionID).Msg("passcode issue requested")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"code":    result.Code,
		"expiry":  result.Expiry.Format(time.RFC3339),
		"payload": result.Payload,
	})
}

type adjustPasscodeRequest struct {
	DeltaSeconds int `json:"deltaSeconds"`
}

// PATCH /v1/sessions/{id}/passcode
func (h *SessionHandler) AdjustPasscode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req adjustPasscodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.DeltaSeconds == 0 {
		writeError(w, apperrors.MissingRequired("deltaSeconds"))
		return
	}

	expiry, err := h.passcodeService.AdjustExpiry(r.Context(), middleware.GetUser(r.Context()), sessionID, req.DeltaSeconds)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"expiry":  expiry.Format(time.RFC3339),
	})
}

func formatSessionList(details []model.SessionDetail) []map[string]any {
	out := make([]map[string]any, 0, len(details))
	for _, detail := range details {
		out = append(out, formatSessionDetail(detail))
	}
	return out
}
