package model

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusOngoing   SessionStatus = "ongoing"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// ValidSessionStatus reports whether s is one of the five enumerated values.
func ValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusScheduled, SessionStatusOngoing, SessionStatusPaused,
		SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// CheckInMethod records how a code reached the evaluator. It is a
// provenance tag only; validation is identical for both.
type CheckInMethod string

const (
	CheckInMethodPasscode CheckInMethod = "passcode"
	CheckInMethodQR       CheckInMethod = "qr"
)
