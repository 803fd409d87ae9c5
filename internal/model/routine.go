package model

import "time"

// ClassRoutine is a recurring weekly course meeting template. One session
// is derived per (routine entry, calendar week); see service.SessionService.
type ClassRoutine struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"courseId"`
	Weekday   int       `db:"weekday" json:"weekday"` // 0=Sunday .. 6=Saturday
	StartTime string    `db:"start_time" json:"startTime"` // "HH:MM:SS"
	EndTime   string    `db:"end_time" json:"endTime"`     // "HH:MM:SS"
	Room      string    `db:"room" json:"room"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
