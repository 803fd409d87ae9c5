package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/attendify/attendance-server-go/internal/audit"
	"github.com/attendify/attendance-server-go/internal/config"
	"github.com/attendify/attendance-server-go/internal/database"
	apperrors "github.com/attendify/attendance-server-go/internal/errors"
	"github.com/attendify/attendance-server-go/internal/model"
	"github.com/attendify/attendance-server-go/internal/repository"
	"github.com/attendify/attendance-server-go/internal/sse"
	"github.com/attendify/attendance-server-go/internal/util"
)

// Excludes O, I, 0, 1 so codes survive being read off a projector.
const passcodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// QRPayload is the scan transport record encoded into the QR code. The
// active flag is a display hint only; the evaluator re-checks status and
// expiry regardless.
type QRPayload struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Active    bool   `json:"active"`
}

type IssueResult struct {
	Code    string    `json:"code"`
	Expiry  time.Time `json:"expiry"`
	Payload QRPayload `json:"payload"`
}

type PasscodeService struct {
	db          database.Transactor
	sessionRepo repository.SessionRepository
	courseRepo  repository.CourseRepository
	broker      sse.Publisher
	defaultTTL  time.Duration
	maxTTL      time.Duration
	now         func() time.Time
}

func NewPasscodeService(
	db database.Transactor,
	sessionRepo repository.SessionRepository,
	courseRepo repository.CourseRepository,
	broker sse.Publisher,
	defaultTTL, maxTTL time.Duration,
) *PasscodeService {
	return &PasscodeService{
		db:          db,
		sessionRepo: sessionRepo,
		courseRepo:  courseRepo,
		broker:      broker,
		defaultTTL:  defaultTTL,
		maxTTL:      maxTTL,
		now:         time.Now,
	}
}

// Issue generates a fresh code and opens a new validity window on the
// session. Issuing over an existing code invalidates it immediately, so
// Issue doubles as rotation. No precondition on session status: a teacher
// may arm a code before flipping the session to ongoing.
func (s *PasscodeService) Issue(ctx context.Context, actor *model.User, sessionID string, durationSeconds int) (*IssueResult, error) {
	ttl := s.clampTTL(durationSeconds)

	code := generatePasscode()
	var expiry time.Time

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.sessionRepo.WithTx(tx)

		session, err := repo.FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		if session == nil {
			return apperrors.SessionNotFound()
		}
		if err := s.authorize(ctx, actor, session); err != nil {
			return err
		}

		expiry = s.now().Add(ttl)
		if err := repo.SetPasscode(ctx, sessionID, code, expiry); err != nil {
			return apperrors.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &IssueResult{
		Code:   code,
		Expiry: expiry,
		Payload: QRPayload{
			SessionID: sessionID,
			Token:     code,
			Active:    true,
		},
	}

	s.publishPasscode(ctx, sessionID, result.Payload, expiry)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPasscodeIssue,
		UserID:    actor.ID,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"code":            util.MaskCode(code),
			"durationSeconds": int(ttl.Seconds()),
		},
	})

	log.Info().
		Str("sessionId", sessionID).
		Str("code", util.MaskCode(code)).
		Time("expiresAt", expiry).
		Msg("passcode issued")

	return result, nil
}

// Rotate is Issue: overwriting the stored code is what invalidates the
// previous one, even if its window had not yet elapsed.
func (s *PasscodeService) Rotate(ctx context.Context, actor *model.User, sessionID string, durationSeconds int) (*IssueResult, error) {
	return s.Issue(ctx, actor, sessionID, durationSeconds)
}

// AdjustExpiry extends or shortens the current window without regenerating
// the code. Remaining time is clamped at a floor of zero.
func (s *PasscodeService) AdjustExpiry(ctx context.Context, actor *model.User, sessionID string, deltaSeconds int) (time.Time, error) {
	var newExpiry time.Time
	var payload QRPayload

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.sessionRepo.WithTx(tx)

		session, err := repo.FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		if session == nil {
			return apperrors.SessionNotFound()
		}
		if err := s.authorize(ctx, actor, session); err != nil {
			return err
		}
		if session.ActivePasscode == nil || session.PasscodeExpiry == nil {
			return apperrors.NoActivePasscode()
		}

		now := s.now()
		remaining := session.PasscodeExpiry.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		remaining += time.Duration(deltaSeconds) * time.Second
		if remaining < 0 {
			remaining = 0
		}
		if remaining > s.maxTTL {
			remaining = s.maxTTL
		}

		newExpiry = now.Add(remaining)
		payload = QRPayload{
			SessionID: sessionID,
			Token:     *session.ActivePasscode,
			Active:    remaining > 0,
		}

		if err := repo.SetPasscode(ctx, sessionID, *session.ActivePasscode, newExpiry); err != nil {
			return apperrors.Database(err)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	s.publishPasscode(ctx, sessionID, payload, newExpiry)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPasscodeAdjust,
		UserID:    actor.ID,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"deltaSeconds": deltaSeconds,
		},
	})

	return newExpiry, nil
}

func (s *PasscodeService) clampTTL(durationSeconds int) time.Duration {
	if durationSeconds <= 0 {
		return s.defaultTTL
	}
	ttl := time.Duration(durationSeconds) * time.Second
	if ttl > s.maxTTL {
		return s.maxTTL
	}
	return ttl
}

func (s *PasscodeService) authorize(ctx context.Context, actor *model.User, session *model.Session) error {
	if actor == nil {
		return apperrors.Unauthorized("Authentication required")
	}
	if actor.Role == model.RoleAdmin {
		return nil
	}
	if actor.Role != model.RoleTeacher {
		return apperrors.Forbidden("Only teachers can manage passcodes")
	}

	course, err := s.courseRepo.FindByID(ctx, session.CourseID)
	if err != nil {
		return apperrors.Database(err)
	}
	if course == nil || course.TeacherID != actor.ID {
		return apperrors.Forbidden("Only the session's teacher can manage its passcode")
	}
	return nil
}

func (s *PasscodeService) publishPasscode(ctx context.Context, sessionID string, payload QRPayload, expiry time.Time) {
	data, _ := json.Marshal(map[string]any{
		"payload":   payload,
		"expiresAt": expiry.Format(time.RFC3339),
	})
	if err := s.broker.Publish(ctx, sessionID, sse.Event{
		Type: sse.EventPasscodeUpdated,
		Data: data,
	}); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish passcode event")
	}
}

func generatePasscode() string {
	chars := []byte(passcodeChars)
	code := make([]byte, config.PasscodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[n.Int64()]
	}
	return string(code)
}

// ParseScanPayload decodes what the capture surface produced. A JSON object
// carrying a token binds the code to a session; anything else is treated as
// a bare code with no session binding (the caller must already know the
// target session).
func ParseScanPayload(raw string) QRPayload {
	var payload QRPayload
	if err := json.Unmarshal([]byte(raw), &payload); err == nil && payload.Token != "" {
		return payload
	}
	return QRPayload{Token: raw}
}
