package service

import (
	"context"
	"encoding/csv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/attendify/attendance-server-go/internal/audit"
	apperrors "github.com/attendify/attendance-server-go/internal/errors"
	"github.com/attendify/attendance-server-go/internal/model"
	"github.com/attendify/attendance-server-go/internal/repository"
)

// RosterService serves read and administrative operations on accepted
// attendance records.
type RosterService struct {
	attendanceRepo repository.AttendanceRepository
	sessionRepo    repository.SessionRepository
}

func NewRosterService(
	attendanceRepo repository.AttendanceRepository,
	sessionRepo repository.SessionRepository,
) *RosterService {
	return &RosterService{
		attendanceRepo: attendanceRepo,
		sessionRepo:    sessionRepo,
	}
}

func (s *RosterService) ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.SessionNotFound()
	}

	records, err := s.attendanceRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return records, nil
}

// Delete removes a single attendance record. Admin only; enforcement is
// at the transport layer.
func (s *RosterService) Delete(ctx context.Context, actor *model.User, recordID string) error {
	deleted, err := s.attendanceRepo.Delete(ctx, recordID)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		return apperrors.NotFound("Attendance record")
	}

	actorID := ""
	if actor != nil {
		actorID = actor.ID
	}
	audit.Log(ctx, audit.Event{
		Type:   audit.EventAttendanceDrop,
		UserID: actorID,
		Details: map[string]interface{}{
			"recordId": recordID,
		},
	})
	return nil
}

// ExportCSV renders a teacher's attendance for the given period as CSV.
func (s *RosterService) ExportCSV(ctx context.Context, teacherID string, period repository.ExportPeriod, courseCode string) (string, error) {
	if !repository.ValidExportPeriod(period) {
		return "", apperrors.InvalidInput("period", string(period))
	}

	rows, err := s.attendanceRepo.ExportRows(ctx, teacherID, period, courseCode)
	if err != nil {
		return "", apperrors.Database(err)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write([]string{"Session Date", "Course Code", "Course Name", "Student Name", "Student ID", "Check-in Time"})
	for _, row := range rows {
		number := ""
		if row.StudentNumber != nil {
			number = *row.StudentNumber
		}
		_ = w.Write([]string{
			row.SessionDate.Format("2006-01-02 15:04"),
			row.CourseCode,
			row.CourseName,
			row.StudentName,
			number,
			row.CheckedInAt.Format("15:04:05"),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", apperrors.Internal("Failed to render CSV").WithCause(err)
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventExport,
		UserID: teacherID,
		Details: map[string]interface{}{
			"period":     string(period),
			"courseCode": courseCode,
			"rows":       len(rows),
		},
	})

	log.Info().
		Str("teacherId", teacherID).
		Str("period", string(period)).
		Int("rows", len(rows)).
		Msg("attendance exported")

	return sb.String(), nil
}

// ExportFilename names the downloaded CSV.
func ExportFilename(period repository.ExportPeriod, now time.Time) string {
	return "attendance_" + string(period) + "_" + now.Format("20060102150405") + ".csv"
}
