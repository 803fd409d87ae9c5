package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/attendify/attendance-server-go/internal/model"
)

// ExportPeriod selects the date range of an attendance export.
type ExportPeriod string

const (
	ExportDaily   ExportPeriod = "daily"
	ExportWeekly  ExportPeriod = "weekly"
	ExportMonthly ExportPeriod = "monthly"
)

func ValidExportPeriod(p ExportPeriod) bool {
	return p == ExportDaily || p == ExportWeekly || p == ExportMonthly
}

type AttendanceRepository interface {
	// Create inserts an attendance record. A unique index on
	// (session_id, student_id) makes duplicate inserts fail with a unique
	// violation; callers detect it with IsUniqueViolation.
	Create(ctx context.Context, params model.CreateAttendanceParams) (*model.AttendanceRecord, error)
	ExistsBySessionAndStudent(ctx context.Context, sessionID, studentID string) (bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	ExportRows(ctx context.Context, teacherID string, period ExportPeriod, courseCode string) ([]model.ExportRow, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AttendanceRepository
}

type attendanceDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type attendanceRepo struct {
	db attendanceDB
}

func NewAttendanceRepository(db *sqlx.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) WithTx(tx *sqlx.Tx) AttendanceRepository {
	return &attendanceRepo{db: tx}
}

func (r *attendanceRepo) Create(ctx context.Context, params model.CreateAttendanceParams) (*model.AttendanceRecord, error) {
	var record model.AttendanceRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO attendance (id, session_id, student_id, checked_in_at, method)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.ID, params.SessionID, params.StudentID, time.Now(), params.Method)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *attendanceRepo) ExistsBySessionAndStudent(ctx context.Context, sessionID, studentID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM attendance
			WHERE session_id = $1 AND student_id = $2
		)
	`, sessionID, studentID)
	return exists, err
}

func (r *attendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	records := []model.AttendanceRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT
			a.*,
			u.full_name AS student_name,
			u.student_id AS student_number
		FROM attendance a
		JOIN users u ON a.student_id = u.id
		WHERE a.session_id = $1
		ORDER BY a.checked_in_at ASC
	`, sessionID)
	return records, err
}

func (r *attendanceRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance WHERE id = $1
	`, id)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *attendanceRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *attendanceRepo) ExportRows(ctx context.Context, teacherID string, period ExportPeriod, courseCode string) ([]model.ExportRow, error) {
	dateFilter := ""
	switch period {
	case ExportDaily:
		dateFilter = "AND s.start_time >= date_trunc('day', NOW())"
	case ExportWeekly:
		dateFilter = "AND s.start_time >= date_trunc('week', NOW())"
	case ExportMonthly:
		dateFilter = "AND s.start_time >= date_trunc('month', NOW())"
	}

	query := `
		SELECT
			s.start_time AS session_date,
			c.code AS course_code,
			c.name AS course_name,
			u.full_name AS student_name,
			u.student_id AS student_number,
			a.checked_in_at
		FROM attendance a
		JOIN sessions s ON a.session_id = s.id
		JOIN courses c ON s.course_id = c.id
		JOIN users u ON a.student_id = u.id
		WHERE c.teacher_id = $1
		` + dateFilter + `
	`

	args := []interface{}{teacherID}
	if courseCode != "" && courseCode != "all" {
		query += " AND c.code = $2"
		args = append(args, courseCode)
	}
	query += " ORDER BY s.start_time DESC, a.checked_in_at ASC"

	rows := []model.ExportRow{}
	err := r.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}
