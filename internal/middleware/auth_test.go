package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuelscope/internal/auth"
	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	middleware := NewAuthMiddleware(authService)

	t.Run("valid token", func(t *testing.T) {
		user := &models.User{
			ID:    primitive.NewObjectID(),
			Email: "driver@example.com",
			Role:  models.RoleUser,
		}
		token, err := authService.GenerateToken(user)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/vehicles", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			claims, ok := GetUserFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, user.ID.Hex(), claims.UserID)
			assert.Equal(t, user.Email, claims.Email)
			assert.Equal(t, user.Role, claims.Role)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	rejected := []struct {
		name   string
		header string
	}{
		{"missing authorization header", ""},
		{"invalid token", "Bearer invalid-token"},
		{"wrong scheme", "Token abc"},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/vehicles", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.False(t, handlerCalled)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	for _, path := range []string{"/api/auth/login", "/api/auth/register", "/api/ping"} {
		t.Run("skip "+path, func(t *testing.T) {
			req := httptest.NewRequest("POST", path, nil)
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.True(t, handlerCalled)
		})
	}

	t.Run("profile is not skipped", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/auth/profile", nil)
		w := httptest.NewRecorder()
		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetUserFromContext(t *testing.T) {
	claims := &models.Claims{
		UserID: "test-id",
		Email:  "test@example.com",
		Role:   models.RoleAdmin,
	}

	ctx := context.WithValue(context.Background(), UserContextKey, claims)
	retrieved, ok := GetUserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, claims, retrieved)

	_, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)

	// a plain string key must not collide with the typed key
	ctx = context.WithValue(context.Background(), "user", claims)
	_, ok = GetUserFromContext(ctx)
	assert.False(t, ok)
}
