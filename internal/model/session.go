package model

import "time"

// Session is one instance of a class meeting eligible for attendance capture.
// The active_passcode and passcode_expiry columns are either both set or
// both NULL; every write path updates them together.
type Session struct {
	ID             string        `db:"id" json:"id"`
	CourseID       string        `db:"course_id" json:"courseId"`
	StartTime      time.Time     `db:"start_time" json:"startTime"`
	EndTime        time.Time     `db:"end_time" json:"endTime"`
	Status         SessionStatus `db:"status" json:"status"`
	Room           string        `db:"room" json:"room"`
	IsAdhoc        bool          `db:"is_adhoc" json:"isAdhoc"`
	ActivePasscode *string       `db:"active_passcode" json:"-"`
	PasscodeExpiry *time.Time    `db:"passcode_expiry" json:"passcodeExpiry,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// HasActivePasscode reports whether a code window is open as of now.
// Expiry is strictly-after: a check-in at the exact boundary is accepted.
func (s *Session) HasActivePasscode(now time.Time) bool {
	if s.ActivePasscode == nil || s.PasscodeExpiry == nil {
		return false
	}
	return !now.After(*s.PasscodeExpiry)
}

type CreateSessionParams struct {
	ID        string
	CourseID  string
	StartTime time.Time
	EndTime   time.Time
	Status    SessionStatus
	Room      string
	IsAdhoc   bool
}

// SessionDetail is a session joined with its course, teacher, and roster,
// the shape session list endpoints return.
type SessionDetail struct {
	Session
	CourseCode    string             `db:"course_code" json:"-"`
	CourseName    string             `db:"course_name" json:"-"`
	TeacherID     string             `db:"teacher_id" json:"-"`
	TeacherName   string             `db:"teacher_name" json:"-"`
	TotalStudents int                `db:"total_students" json:"totalStudents"`
	Roster        []AttendanceRecord `json:"liveAttendance"`
}

// HistoryEntry is a past session annotated with whether a given student
// has an accepted attendance record for it.
type HistoryEntry struct {
	Session
	CourseCode  string `db:"course_code" json:"-"`
	CourseName  string `db:"course_name" json:"-"`
	TeacherName string `db:"teacher_name" json:"-"`
	Attended    bool   `db:"attended" json:"attended"`
}
