package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/attendify/attendance-server-go/internal/audit"
	"github.com/attendify/attendance-server-go/internal/database"
	apperrors "github.com/attendify/attendance-server-go/internal/errors"
	"github.com/attendify/attendance-server-go/internal/model"
	"github.com/attendify/attendance-server-go/internal/repository"
	"github.com/attendify/attendance-server-go/internal/sse"
)

type CheckInInput struct {
	SessionID string
	StudentID string
	// Code is the presented passcode. Nil means no passcode gate was
	// requested (trusted direct flow); empty string is a presented,
	// and therefore checked, code.
	Code   *string
	Method model.CheckInMethod
}

type CheckInResult struct {
	Record      *model.AttendanceRecord `json:"record"`
	CourseName  string                  `json:"courseName"`
	StudentName string                  `json:"studentName"`
	CheckedInAt time.Time               `json:"checkedInAt"`
	Message     string                  `json:"message"`
}

// CheckInService decides accept/reject for a presented check-in and
// performs the at-most-once attendance write.
type CheckInService struct {
	db             database.Transactor
	sessionRepo    repository.SessionRepository
	attendanceRepo repository.AttendanceRepository
	userRepo       repository.UserRepository
	courseRepo     repository.CourseRepository
	broker         sse.Publisher
	now            func() time.Time
}

func NewCheckInService(
	db database.Transactor,
	sessionRepo repository.SessionRepository,
	attendanceRepo repository.AttendanceRepository,
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	broker sse.Publisher,
) *CheckInService {
	return &CheckInService{
		db:             db,
		sessionRepo:    sessionRepo,
		attendanceRepo: attendanceRepo,
		userRepo:       userRepo,
		courseRepo:     courseRepo,
		broker:         broker,
		now:            time.Now,
	}
}

// Mark runs the ordered checks from the check-in protocol; the first
// failure wins and no partial side effects survive a failure path. The
// existence check and the insert run inside one transaction holding a row
// lock on the session, so concurrent duplicates for the same (session,
// student) pair serialize: exactly one acceptance wins and the rest
// observe ALREADY_MARKED. The unique index on (session_id, student_id)
// backs this up across instances.
func (s *CheckInService) Mark(ctx context.Context, input CheckInInput) (*CheckInResult, error) {
	student, err := s.userRepo.FindByID(ctx, input.StudentID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if student == nil {
		return nil, apperrors.NotFound("Student")
	}

	var record *model.AttendanceRecord
	var courseID string

	txErr := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessionRepo.WithTx(tx)
		attendance := s.attendanceRepo.WithTx(tx)

		session, err := sessions.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		if session == nil {
			return apperrors.SessionNotFound()
		}
		courseID = session.CourseID

		if session.Status != model.SessionStatusOngoing {
			return apperrors.SessionNotActive()
		}

		if input.Code != nil {
			if session.ActivePasscode == nil {
				return apperrors.NoActivePasscode()
			}
			presented := strings.ToUpper(strings.TrimSpace(*input.Code))
			if presented != strings.ToUpper(*session.ActivePasscode) {
				return apperrors.InvalidPasscode()
			}
			// Strictly-after: a check-in at the exact expiry instant
			// is still accepted.
			if session.PasscodeExpiry != nil && s.now().After(*session.PasscodeExpiry) {
				return apperrors.PasscodeExpired()
			}
		}

		exists, err := attendance.ExistsBySessionAndStudent(ctx, input.SessionID, student.ID)
		if err != nil {
			return apperrors.Database(err)
		}
		if exists {
			return apperrors.AlreadyMarked()
		}

		record, err = attendance.Create(ctx, model.CreateAttendanceParams{
			ID:        uuid.NewString(),
			SessionID: input.SessionID,
			StudentID: student.ID,
			Method:    input.Method,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return apperrors.AlreadyMarked()
			}
			return apperrors.Database(err)
		}
		return nil
	})
	if txErr != nil {
		s.auditVerdict(ctx, input, student.ID, txErr)
		return nil, txErr
	}

	courseName := ""
	if course, err := s.courseRepo.FindByID(ctx, courseID); err == nil && course != nil {
		courseName = course.Name
	}

	s.publishCheckIn(ctx, input.SessionID, student, record)
	s.auditVerdict(ctx, input, student.ID, nil)

	log.Info().
		Str("sessionId", input.SessionID).
		Str("studentId", student.ID).
		Str("method", string(input.Method)).
		Msg("attendance marked")

	return &CheckInResult{
		Record:      record,
		CourseName:  courseName,
		StudentName: student.FullName,
		CheckedInAt: record.CheckedInAt,
		Message:     "Attendance marked successfully!",
	}, nil
}

func (s *CheckInService) publishCheckIn(ctx context.Context, sessionID string, student *model.User, record *model.AttendanceRecord) {
	data, _ := json.Marshal(map[string]any{
		"recordId":    record.ID,
		"studentId":   student.ID,
		"studentName": student.FullName,
		"checkedInAt": record.CheckedInAt.Format(time.RFC3339),
		"method":      record.Method,
	})
	if err := s.broker.Publish(ctx, sessionID, sse.Event{
		Type: sse.EventCheckIn,
		Data: data,
	}); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish checkin event")
	}
}

// auditVerdict records every verdict. Rejections are expected outcomes,
// not failures, but they are telemetry the teacher dashboard cares about.
func (s *CheckInService) auditVerdict(ctx context.Context, input CheckInInput, studentID string, verdict error) {
	if verdict == nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventCheckInAccept,
			UserID:    studentID,
			SessionID: input.SessionID,
			Details: map[string]interface{}{
				"method": string(input.Method),
			},
		})
		return
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventCheckInReject,
		UserID:    studentID,
		SessionID: input.SessionID,
		Details: map[string]interface{}{
			"method": string(input.Method),
			"reason": string(apperrors.GetCode(verdict)),
		},
	})
}
