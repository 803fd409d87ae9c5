package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/attendify/attendance-server-go/internal/audit"
	apperrors "github.com/attendify/attendance-server-go/internal/errors"
	"github.com/attendify/attendance-server-go/internal/util"
)

const AdminPasswordHeader = "X-Admin-Password"

// AdminMiddleware gates destructive endpoints (roster reset, attendance
// deletion) behind the bcrypt-hashed admin password. When no hash is
// configured the endpoints are disabled outright.
type AdminMiddleware struct {
	passwordHash string
}

func NewAdminMiddleware(passwordHash string) *AdminMiddleware {
	return &AdminMiddleware{passwordHash: passwordHash}
}

func (m *AdminMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.passwordHash == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "Admin endpoints are disabled",
			})
			return
		}

		password := r.Header.Get(AdminPasswordHeader)
		if password == "" || !util.CheckPasswordHash(password, m.passwordHash) {
			audit.LogFromRequest(r, audit.Event{
				Type: audit.EventAdminAuthFail,
			})
			log.Warn().Msg("admin middleware: invalid password attempt")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid admin credentials",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Verify checks the admin password header without wrapping a handler, for
// endpoints where only some request payloads are destructive.
func (m *AdminMiddleware) Verify(r *http.Request) error {
	if m.passwordHash == "" {
		return apperrors.Forbidden("Admin endpoints are disabled")
	}

	password := r.Header.Get(AdminPasswordHeader)
	if password == "" || !util.CheckPasswordHash(password, m.passwordHash) {
		audit.LogFromRequest(r, audit.Event{
			Type: audit.EventAdminAuthFail,
		})
		return apperrors.Unauthorized("Invalid admin credentials")
	}
	return nil
}
