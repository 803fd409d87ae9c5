package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/attendify/attendance-server-go/internal/errors"
)

func adminHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAdminMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows request with valid password", func(t *testing.T) {
		middleware := NewAdminMiddleware(adminHash(t, "admin-secret"))
		handler := middleware.Handler(okHandler)

		req := httptest.NewRequest("DELETE", "/test", nil)
		req.Header.Set(AdminPasswordHeader, "admin-secret")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		middleware := NewAdminMiddleware(adminHash(t, "admin-secret"))
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("DELETE", "/test", nil)
		req.Header.Set(AdminPasswordHeader, "wrong-password")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects missing password header", func(t *testing.T) {
		middleware := NewAdminMiddleware(adminHash(t, "admin-secret"))
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("DELETE", "/test", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("disables endpoints when no hash configured", func(t *testing.T) {
		middleware := NewAdminMiddleware("")
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("DELETE", "/test", nil)
		req.Header.Set(AdminPasswordHeader, "anything")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAdminMiddlewareVerify(t *testing.T) {
	t.Run("accepts valid password", func(t *testing.T) {
		middleware := NewAdminMiddleware(adminHash(t, "admin-secret"))

		req := httptest.NewRequest("PATCH", "/test", nil)
		req.Header.Set(AdminPasswordHeader, "admin-secret")

		assert.NoError(t, middleware.Verify(req))
	})

	t.Run("returns unauthorized for wrong password", func(t *testing.T) {
		middleware := NewAdminMiddleware(adminHash(t, "admin-secret"))

		req := httptest.NewRequest("PATCH", "/test", nil)
		req.Header.Set(AdminPasswordHeader, "wrong-password")

		err := middleware.Verify(req)
		require.Error(t, err)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ErrCodeUnauthorized, appErr.Code)
	})

	t.Run("returns forbidden when no hash configured", func(t *testing.T) {
		middleware := NewAdminMiddleware("")

		req := httptest.NewRequest("PATCH", "/test", nil)

		err := middleware.Verify(req)
		require.Error(t, err)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)
	})
}
