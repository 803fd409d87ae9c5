package service

import (
	"context"
	"encoding/json"
	"fmt"
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

// Namespace for deterministic routine-derived session IDs. One session
// exists per (routine entry, calendar week); re-deriving a week always
// yields the same IDs, so derivation is idempotent.
var sessionNamespace = uuid.MustParse("8f4e92d1-6c3a-4b7e-9f21-5a0d84c6e713")

type CreateAdHocParams struct {
	CourseCode string
	CourseName string
	Room       string
	StartTime  time.Time
	EndTime    time.Time
}

type SessionService struct {
	db             database.Transactor
	sessionRepo    repository.SessionRepository
	attendanceRepo repository.AttendanceRepository
	courseRepo     repository.CourseRepository
	routineRepo    repository.RoutineRepository
	broker         sse.Publisher
	now            func() time.Time
}

func NewSessionService(
	db database.Transactor,
	sessionRepo repository.SessionRepository,
	attendanceRepo repository.AttendanceRepository,
	courseRepo repository.CourseRepository,
	routineRepo repository.RoutineRepository,
	broker sse.Publisher,
) *SessionService {
	return &SessionService{
		db:             db,
		sessionRepo:    sessionRepo,
		attendanceRepo: attendanceRepo,
		courseRepo:     courseRepo,
		routineRepo:    routineRepo,
		broker:         broker,
		now:            time.Now,
	}
}

// allowedTransitions encodes the lifecycle: scheduled → ongoing →
// {paused ⇄ ongoing} → completed; anything non-terminal may cancel;
// reset-to-scheduled is the destructive administrative rollback.
var allowedTransitions = map[model.SessionStatus][]model.SessionStatus{
	model.SessionStatusScheduled: {
		model.SessionStatusOngoing,
		model.SessionStatusCancelled,
		model.SessionStatusScheduled,
	},
	model.SessionStatusOngoing: {
		model.SessionStatusPaused,
		model.SessionStatusCompleted,
		model.SessionStatusCancelled,
		model.SessionStatusScheduled,
	},
	model.SessionStatusPaused: {
		model.SessionStatusOngoing,
		model.SessionStatusCompleted,
		model.SessionStatusCancelled,
		model.SessionStatusScheduled,
	},
	// completed and cancelled are terminal.
}

func canTransition(from, to model.SessionStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CreateAdHoc creates an "instant" session outside the weekly routine,
// already ongoing. The course is created on first use of its code.
func (s *SessionService) CreateAdHoc(ctx context.Context, actor *model.User, params CreateAdHocParams) (*model.Session, error) {
	if actor == nil || (actor.Role != model.RoleTeacher && actor.Role != model.RoleAdmin) {
		return nil, apperrors.Forbidden("Only teachers can create sessions")
	}

	course, err := s.courseRepo.FindByCode(ctx, params.CourseCode)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if course == nil {
		course, err = s.courseRepo.Create(ctx, model.CreateCourseParams{
			Code:      params.CourseCode,
			Name:      params.CourseName,
			TeacherID: actor.ID,
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}
	}

	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		ID:        uuid.NewString(),
		CourseID:  course.ID,
		StartTime: params.StartTime,
		EndTime:   params.EndTime,
		Status:    model.SessionStatusOngoing,
		Room:      params.Room,
		IsAdhoc:   true,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCreate,
		UserID:    actor.ID,
		SessionID: session.ID,
		Details: map[string]interface{}{
			"courseCode": params.CourseCode,
			"adhoc":      true,
		},
	})

	log.Info().
		Str("sessionId", session.ID).
		Str("courseCode", params.CourseCode).
		Msg("ad-hoc session created")

	return session, nil
}

// UpdateStatus drives a lifecycle transition. Transitioning back to
// scheduled is "start over": the roster and any passcode are cleared in
// the same transaction. Resuming from paused preserves the roster.
func (s *SessionService) UpdateStatus(ctx context.Context, actor *model.User, sessionID string, status model.SessionStatus) (*model.Session, error) {
	if !model.ValidSessionStatus(status) {
		return nil, apperrors.InvalidInput("status", string(status))
	}

	var updated *model.Session
	var reset bool

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessionRepo.WithTx(tx)
		attendance := s.attendanceRepo.WithTx(tx)

		session, err := sessions.FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		if session == nil {
			return apperrors.SessionNotFound()
		}

		if !canTransition(session.Status, status) {
			return apperrors.InvalidTransition(string(session.Status), string(status))
		}

		if status == model.SessionStatusScheduled {
			reset = true
			if _, err := attendance.DeleteBySession(ctx, sessionID); err != nil {
				return apperrors.Database(err)
			}
			if err := sessions.ClearPasscode(ctx, sessionID); err != nil {
				return apperrors.Database(err)
			}
		}

		if err := sessions.UpdateStatus(ctx, sessionID, status); err != nil {
			return apperrors.Database(err)
		}

		session.Status = status
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishStatus(ctx, sessionID, updated.Status, reset)

	actorID := ""
	if actor != nil {
		actorID = actor.ID
	}
	audit.Log(ctx, audit.Event{
		Type:      audit.EventStatusChange,
		UserID:    actorID,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"status": string(status),
			"reset":  reset,
		},
	})

	return updated, nil
}

// DeriveWeek instantiates one session per routine entry for the week
// containing t. Existing sessions are left untouched, preserving any
// persisted status, roster, and passcode state. Returns the number of
// sessions created.
func (s *SessionService) DeriveWeek(ctx context.Context, t time.Time) (int, error) {
	routines, err := s.routineRepo.ListAll(ctx)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	weekStart := startOfWeek(t)
	now := s.now()
	created := 0

	for _, routine := range routines {
		startTime, endTime, err := routineWindow(routine, weekStart)
		if err != nil {
			log.Warn().Err(err).Str("routineId", routine.ID).Msg("skipping malformed routine entry")
			continue
		}

		status := model.SessionStatusScheduled
		if endTime.Before(now) {
			status = model.SessionStatusCompleted
		}

		inserted, err := s.sessionRepo.CreateIfAbsent(ctx, model.CreateSessionParams{
			ID:        DerivedSessionID(routine.ID, weekStart),
			CourseID:  routine.CourseID,
			StartTime: startTime,
			EndTime:   endTime,
			Status:    status,
			Room:      routine.Room,
			IsAdhoc:   false,
		})
		if err != nil {
			return created, apperrors.Database(err)
		}
		if inserted {
			created++
		}
	}

	if created > 0 {
		log.Info().
			Int("created", created).
			Time("weekStart", weekStart).
			Msg("routine sessions derived")
	}
	return created, nil
}

// DerivedSessionID is the deterministic ID for a routine-derived session:
// a v5 UUID over (routineID, weekStart date).
func DerivedSessionID(routineID string, weekStart time.Time) string {
	name := fmt.Sprintf("%s|%s", routineID, weekStart.Format("2006-01-02"))
	return uuid.NewSHA1(sessionNamespace, []byte(name)).String()
}

// GetDetail returns a session with course, teacher, and roster attached.
func (s *SessionService) GetDetail(ctx context.Context, sessionID string) (*model.SessionDetail, error) {
	detail, err := s.sessionRepo.FindDetailByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if detail == nil {
		return nil, apperrors.SessionNotFound()
	}
	if err := s.attachRosters(ctx, []*model.SessionDetail{detail}); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *SessionService) ListAll(ctx context.Context, limit, offset int) ([]model.SessionDetail, error) {
	details, err := s.sessionRepo.ListDetails(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	refs := make([]*model.SessionDetail, len(details))
	for i := range details {
		refs[i] = &details[i]
	}
	if err := s.attachRosters(ctx, refs); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *SessionService) ListForTeacher(ctx context.Context, teacherID string, limit, offset int) ([]model.SessionDetail, error) {
	details, err := s.sessionRepo.ListDetailsByTeacher(ctx, teacherID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	refs := make([]*model.SessionDetail, len(details))
	for i := range details {
		refs[i] = &details[i]
	}
	if err := s.attachRosters(ctx, refs); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *SessionService) HistoryForStudent(ctx context.Context, studentID string) ([]model.HistoryEntry, error) {
	entries, err := s.sessionRepo.HistoryForStudent(ctx, studentID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return entries, nil
}

func (s *SessionService) attachRosters(ctx context.Context, details []*model.SessionDetail) error {
	for _, detail := range details {
		roster, err := s.attendanceRepo.ListBySession(ctx, detail.ID)
		if err != nil {
			return apperrors.Database(err)
		}
		detail.Roster = roster
	}
	return nil
}

func (s *SessionService) publishStatus(ctx context.Context, sessionID string, status model.SessionStatus, reset bool) {
	data, _ := json.Marshal(map[string]any{
		"status": string(status),
	})
	if err := s.broker.Publish(ctx, sessionID, sse.Event{
		Type: sse.EventStatusChanged,
		Data: data,
	}); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish status event")
	}

	if reset {
		if err := s.broker.Publish(ctx, sessionID, sse.Event{
			Type: sse.EventRosterReset,
			Data: json.RawMessage(`{}`),
		}); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish roster reset event")
		}
	}
}

// startOfWeek truncates t to the preceding Sunday at midnight.
func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func routineWindow(routine model.ClassRoutine, weekStart time.Time) (time.Time, time.Time, error) {
	if routine.Weekday < 0 || routine.Weekday > 6 {
		return time.Time{}, time.Time{}, fmt.Errorf("weekday out of range: %d", routine.Weekday)
	}
	day := weekStart.AddDate(0, 0, routine.Weekday)

	start, err := atClock(day, routine.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atClock(day, routine.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04:05", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, day.Location()), nil
}
