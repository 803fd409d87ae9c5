package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendance-server-go/internal/model"
	"github.com/attendify/attendance-server-go/internal/util"
)

type stubUserRepo struct {
	findByTokenHashFunc func(ctx context.Context, tokenHash string) (*model.User, error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}

func (s *stubUserRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	if s.findByTokenHashFunc != nil {
		return s.findByTokenHashFunc(ctx, tokenHash)
	}
	return nil, nil
}

func (s *stubUserRepo) CountStudents(ctx context.Context) (int, error) {
	return 0, nil
}

func TestAuthMiddleware(t *testing.T) {
	testUser := &model.User{
		ID:       "user-123",
		FullName: "Test Student",
		Role:     model.RoleStudent,
	}
	validToken := "valid-token"
	validTokenHash := util.HashToken(validToken)

	t.Run("allows request with valid bearer token", func(t *testing.T) {
		userRepo := &stubUserRepo{
			findByTokenHashFunc: func(ctx context.Context, tokenHash string) (*model.User, error) {
				if tokenHash == validTokenHash {
					return testUser, nil
				}
				return nil, nil
			},
		}

		middleware := NewAuthMiddleware(userRepo)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			require.NotNil(t, user)
			assert.Equal(t, "user-123", user.ID)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+validToken)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("allows request with query token", func(t *testing.T) {
		userRepo := &stubUserRepo{
			findByTokenHashFunc: func(ctx context.Context, tokenHash string) (*model.User, error) {
				if tokenHash == validTokenHash {
					return testUser, nil
				}
				return nil, nil
			},
		}

		middleware := NewAuthMiddleware(userRepo)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test?token="+validToken, nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects request without token", func(t *testing.T) {
		middleware := NewAuthMiddleware(&stubUserRepo{})
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects request with invalid token", func(t *testing.T) {
		middleware := NewAuthMiddleware(&stubUserRepo{})
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns 500 on database error", func(t *testing.T) {
		userRepo := &stubUserRepo{
			findByTokenHashFunc: func(ctx context.Context, tokenHash string) (*model.User, error) {
				return nil, errors.New("database error")
			},
		}

		middleware := NewAuthMiddleware(userRepo)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+validToken)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	run := func(user *model.User, roles ...model.Role) *httptest.ResponseRecorder {
		handler := RequireRole(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		if user != nil {
			req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allows matching role", func(t *testing.T) {
		rec := run(&model.User{ID: "u1", Role: model.RoleTeacher}, model.RoleTeacher, model.RoleAdmin)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects non-matching role", func(t *testing.T) {
		rec := run(&model.User{ID: "u1", Role: model.RoleStudent}, model.RoleTeacher, model.RoleAdmin)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects missing user", func(t *testing.T) {
		rec := run(nil, model.RoleTeacher)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetUser(t *testing.T) {
	t.Run("returns user from context", func(t *testing.T) {
		user := &model.User{ID: "test-id"}
		ctx := context.WithValue(context.Background(), UserContextKey, user)

		result := GetUser(ctx)

		require.NotNil(t, result)
		assert.Equal(t, "test-id", result.ID)
	})

	t.Run("returns nil when no user in context", func(t *testing.T) {
		assert.Nil(t, GetUser(context.Background()))
	})
}
