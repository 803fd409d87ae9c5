package handler

import (
	"net/http"
	"time"

	"github.com/attendify/attendance-server-go/internal/httputil"
	"github.com/attendify/attendance-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatSessionDetail(detail model.SessionDetail) map[string]any {
	roster := make([]map[string]any, 0, len(detail.Roster))
	for _, record := range detail.Roster {
		roster = append(roster, formatAttendance(record))
	}

	return map[string]any{
		"id": detail.ID,
		"course": map[string]any{
			"id":          detail.CourseID,
			"code":        detail.CourseCode,
			"name":        detail.CourseName,
			"teacherId":   detail.TeacherID,
			"teacherName": detail.TeacherName,
		},
		"startTime":      detail.StartTime.Format(time.RFC3339),
		"endTime":        detail.EndTime.Format(time.RFC3339),
		"status":         detail.Status,
		"room":           detail.Room,
		"isAdhoc":        detail.IsAdhoc,
		"totalStudents":  detail.TotalStudents,
		"liveAttendance": roster,
		"passcodeExpiry": formatTime(detail.PasscodeExpiry),
	}
}

func formatAttendance(record model.AttendanceRecord) map[string]any {
	return map[string]any{
		"id": record.ID,
		"student": map[string]any{
			"id":        record.StudentID,
			"fullName":  record.StudentName,
			"studentId": record.StudentNumber,
		},
		"checkedInAt": record.CheckedInAt.Format(time.RFC3339),
		"method":      record.Method,
	}
}

func formatHistory(entry model.HistoryEntry) map[string]any {
	return map[string]any{
		"id": entry.ID,
		"course": map[string]any{
			"id":          entry.CourseID,
			"code":        entry.CourseCode,
			"name":        entry.CourseName,
			"teacherName": entry.TeacherName,
		},
		"startTime": entry.StartTime.Format(time.RFC3339),
		"endTime":   entry.EndTime.Format(time.RFC3339),
		"room":      entry.Room,
		"attended":  entry.Attended,
	}
}
