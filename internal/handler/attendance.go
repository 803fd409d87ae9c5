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
	"github.com/attendify/attendance-server-go/internal/repository"
	"github.com/attendify/attendance-server-go/internal/service"
)

type AttendanceHandler struct {
	checkInService *service.CheckInService
	rosterService  *service.RosterService
	adminGate      *middleware.AdminMiddleware
	rateLimit      func(http.Handler) http.Handler
}

func NewAttendanceHandler(
	checkInService *service.CheckInService,
	rosterService *service.RosterService,
	adminGate *middleware.AdminMiddleware,
	rateLimit func(http.Handler) http.Handler,
) *AttendanceHandler {
	return &AttendanceHandler{
		checkInService: checkInService,
		rosterService:  rosterService,
		adminGate:      adminGate,
		rateLimit:      rateLimit,
	}
}

func (h *AttendanceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.rateLimit != nil {
		r.With(h.rateLimit).Post("/mark", h.Mark)
	} else {
		r.Post("/mark", h.Mark)
	}
	r.Get("/session/{sessionId}", h.ListBySession)
	r.With(middleware.RequireRole(model.RoleTeacher, model.RoleAdmin)).
		Get("/export/{teacherId}", h.Export)
	r.With(h.adminGate.Handler).Delete("/{id}", h.Delete)

	return r
}

type markRequest struct {
	SessionID string  `json:"sessionId"`
	StudentID string  `json:"studentId"`
	Passcode  *string `json:"passcode"`
	Payload   string  `json:"payload"`
}

// POST /v1/attendance/mark
//
// Students always check themselves in; the authenticated identity wins
// over anything in the body. Teachers and admins may mark a named student
// directly (the projector-tap flow), which skips the passcode gate when no
// code is supplied.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	studentID := req.StudentID
	if user.Role == model.RoleStudent {
		studentID = user.ID
	}
	if studentID == "" {
		writeError(w, apperrors.MissingRequired("studentId"))
		return
	}

	input := service.CheckInInput{
		StudentID: studentID,
		SessionID: req.SessionID,
		Method:    model.CheckInMethodPasscode,
	}

	if req.Payload != "" {
		scanned := service.ParseScanPayload(req.Payload)
		if scanned.SessionID != "" {
			if input.SessionID == "" {
				input.SessionID = scanned.SessionID
			} else if input.SessionID != scanned.SessionID {
				writeError(w, apperrors.InvalidInput("payload", "QR code is for a different session"))
				return
			}
		}
		input.Code = &scanned.Token
		input.Method = model.CheckInMethodQR
	} else if req.Passcode != nil {
		input.Code = req.Passcode
	} else if user.Role == model.RoleStudent {
		// Students never bypass the code gate.
		writeError(w, apperrors.MissingRequired("passcode"))
		return
	}

	if input.SessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionId"))
		return
	}

	result, err := h.checkInService.Mark(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"message":     result.Message,
		"courseName":  result.CourseName,
		"studentName": result.StudentName,
		"checkedInAt": result.CheckedInAt.Format(time.RFC3339),
		"record":      formatAttendance(*result.Record),
	})
}

// GET /v1/attendance/session/{sessionId}
func (h *AttendanceHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	records, err := h.rosterService.ListBySession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, formatAttendance(record))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/attendance/export/{teacherId}?period=daily|weekly|monthly&courseCode=
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	teacherID := chi.URLParam(r, "teacherId")

	user := middleware.GetUser(r.Context())
	if user != nil && user.Role == model.RoleTeacher && user.ID != teacherID {
		writeError(w, apperrors.Forbidden("Teachers can only export their own attendance"))
		return
	}

	period := repository.ExportPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = repository.ExportWeekly
	}
	courseCode := r.URL.Query().Get("courseCode")

	csvData, err := h.rosterService.ExportCSV(r.Context(), teacherID, period, courseCode)
	if err != nil {
		writeError(w, err)
		return
	}

	filename := service.ExportFilename(period, time.Now())

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(csvData)); err != nil {
		log.Error().Err(err).Msg("failed to write csv response")
	}
}

// DELETE /v1/attendance/{id}
func (h *AttendanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")

	if err := h.rosterService.Delete(r.Context(), middleware.GetUser(r.Context()), recordID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
	})
}
