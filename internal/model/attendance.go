package model

import "time"

// AttendanceRecord is one accepted check-in. Records are unique per
// (session_id, student_id); the database enforces this with a unique index.
type AttendanceRecord struct {
	ID          string        `db:"id" json:"id"`
	SessionID   string        `db:"session_id" json:"sessionId"`
	StudentID   string        `db:"student_id" json:"-"`
	CheckedInAt time.Time     `db:"checked_in_at" json:"checkedInAt"`
	Method      CheckInMethod `db:"method" json:"method"`

	// Joined student display fields.
	StudentName   string  `db:"student_name" json:"studentName"`
	StudentNumber *string `db:"student_number" json:"studentNumber,omitempty"`
}

type CreateAttendanceParams struct {
	ID        string
	SessionID string
	StudentID string
	Method    CheckInMethod
}

// ExportRow is one line of the attendance CSV export.
type ExportRow struct {
	SessionDate   time.Time `db:"session_date"`
	CourseCode    string    `db:"course_code"`
	CourseName    string    `db:"course_name"`
	StudentName   string    `db:"student_name"`
	StudentNumber *string   `db:"student_number"`
	CheckedInAt   time.Time `db:"checked_in_at"`
}
