package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/attendify/attendance-server-go/internal/model"
)

const sessionDetailColumns = `
	s.*,
	c.code AS course_code,
	c.name AS course_name,
	u.id AS teacher_id,
	u.full_name AS teacher_name,
	(SELECT COUNT(*) FROM users WHERE role = 'student') AS total_students
`

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindByIDForUpdate locks the session row for the remainder of the
	// enclosing transaction. Callers must be inside WithTx.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Session, error)
	FindDetailByID(ctx context.Context, id string) (*model.SessionDetail, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// CreateIfAbsent inserts a session and reports whether a row was written.
	// Existing rows are left untouched so routine re-derivation preserves
	// persisted status, roster, and passcode state.
	CreateIfAbsent(ctx context.Context, params model.CreateSessionParams) (bool, error)
	UpdateStatus(ctx context.Context, id string, status model.SessionStatus) error
	SetPasscode(ctx context.Context, id string, code string, expiry time.Time) error
	ClearPasscode(ctx context.Context, id string) error
	ListDetails(ctx context.Context, limit, offset int) ([]model.SessionDetail, error)
	ListDetailsByTeacher(ctx context.Context, teacherID string, limit, offset int) ([]model.SessionDetail, error)
	HistoryForStudent(ctx context.Context, studentID string) ([]model.HistoryEntry, error)
	SweepExpiredPasscodes(ctx context.Context, olderThan time.Duration) (int64, error)
	CompletePastSessions(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindDetailByID(ctx context.Context, id string) (*model.SessionDetail, error) {
	var detail model.SessionDetail
	err := r.db.GetContext(ctx, &detail, `
		SELECT `+sessionDetailColumns+`
		FROM sessions s
		JOIN courses c ON s.course_id = c.id
		JOIN users u ON c.teacher_id = u.id
		WHERE s.id = $1
	`, id)
	return HandleNotFound(&detail, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (id, course_id, start_time, end_time, status, room, is_adhoc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.ID, params.CourseID, params.StartTime, params.EndTime, params.Status, params.Room, params.IsAdhoc)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) CreateIfAbsent(ctx context.Context, params model.CreateSessionParams) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, course_id, start_time, end_time, status, room, is_adhoc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, params.ID, params.CourseID, params.StartTime, params.EndTime, params.Status, params.Room, params.IsAdhoc)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *sessionRepo) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = $2,
			updated_at = $3
		WHERE id = $1
	`, id, status, time.Now())
	return err
}

func (r *sessionRepo) SetPasscode(ctx context.Context, id string, code string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			active_passcode = $2,
			passcode_expiry = $3,
			updated_at = $4
		WHERE id = $1
	`, id, code, expiry, time.Now())
	return err
}

func (r *sessionRepo) ClearPasscode(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			active_passcode = NULL,
			passcode_expiry = NULL,
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *sessionRepo) ListDetails(ctx context.Context, limit, offset int) ([]model.SessionDetail, error) {
	details := []model.SessionDetail{}
	err := r.db.SelectContext(ctx, &details, `
		SELECT `+sessionDetailColumns+`
		FROM sessions s
		JOIN courses c ON s.course_id = c.id
		JOIN users u ON c.teacher_id = u.id
		ORDER BY s.start_time DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return details, err
}

func (r *sessionRepo) ListDetailsByTeacher(ctx context.Context, teacherID string, limit, offset int) ([]model.SessionDetail, error) {
	details := []model.SessionDetail{}
	err := r.db.SelectContext(ctx, &details, `
		SELECT `+sessionDetailColumns+`
		FROM sessions s
		JOIN courses c ON s.course_id = c.id
		JOIN users u ON c.teacher_id = u.id
		WHERE c.teacher_id = $1
		ORDER BY s.start_time DESC
		LIMIT $2 OFFSET $3
	`, teacherID, limit, offset)
	return details, err
}

func (r *sessionRepo) HistoryForStudent(ctx context.Context, studentID string) ([]model.HistoryEntry, error) {
	entries := []model.HistoryEntry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT
			s.*,
			c.code AS course_code,
			c.name AS course_name,
			u.full_name AS teacher_name,
			EXISTS(
				SELECT 1 FROM attendance
				WHERE session_id = s.id AND student_id = $1
			) AS attended
		FROM sessions s
		JOIN courses c ON s.course_id = c.id
		JOIN users u ON c.teacher_id = u.id
		WHERE s.status = 'completed' OR s.end_time < NOW()
		ORDER BY s.start_time DESC
	`, studentID)
	return entries, err
}

// SweepExpiredPasscodes clears passcode columns that expired more than
// olderThan ago. Cosmetic only: the evaluator compares expiry at check-in
// time and never relies on this sweep.
func (r *sessionRepo) SweepExpiredPasscodes(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			active_passcode = NULL,
			passcode_expiry = NULL,
			updated_at = NOW()
		WHERE passcode_expiry IS NOT NULL
		AND passcode_expiry < NOW() - ($1 * interval '1 second')
	`, int64(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CompletePastSessions marks scheduled sessions whose window has fully
// elapsed as completed, mirroring the default applied at derivation time.
func (r *sessionRepo) CompletePastSessions(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'completed',
			updated_at = NOW()
		WHERE status = 'scheduled'
		AND end_time < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
