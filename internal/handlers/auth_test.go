package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuelscope/internal/auth"
	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/middleware"
	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func postJSON(t *testing.T, path string, v interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
}

func TestAuthHandler_Login(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	passwordHash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	user := &models.User{
		ID:           primitive.NewObjectID(),
		Name:         "Test User",
		Email:        "test@example.com",
		PasswordHash: passwordHash,
		Role:         models.RolePremium,
		IsActive:     true,
	}

	t.Run("successful login", func(t *testing.T) {
		users := new(MockUserCollection)
		users.On("FindUserByEmail", mock.Anything, "test@example.com").Return(user, nil)
		users.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(nil)
		handler := NewAuthHandler(authService, users)

		w := httptest.NewRecorder()
		handler.Login(w, postJSON(t, "/api/auth/login", models.LoginRequest{Email: "test@example.com", Password: "password123"}))

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, user.Email, resp.User.Email)
		assert.NotContains(t, w.Body.String(), passwordHash)

		claims, err := authService.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID.Hex(), claims.UserID)
		assert.Equal(t, models.RolePremium, claims.Role)
		users.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(MockUserCollection)
		users.On("FindUserByEmail", mock.Anything, "test@example.com").Return(user, nil)
		handler := NewAuthHandler(authService, users)

		w := httptest.NewRecorder()
		handler.Login(w, postJSON(t, "/api/auth/login", models.LoginRequest{Email: "test@example.com", Password: "nope-nope"}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
	})

	t.Run("unknown user", func(t *testing.T) {
		users := new(MockUserCollection)
		users.On("FindUserByEmail", mock.Anything, "ghost@example.com").Return(nil, db.ErrNotFound)
		handler := NewAuthHandler(authService, users)

		w := httptest.NewRecorder()
		handler.Login(w, postJSON(t, "/api/auth/login", models.LoginRequest{Email: "ghost@example.com", Password: "password123"}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("inactive user", func(t *testing.T) {
		inactive := *user
		inactive.IsActive = false
		users := new(MockUserCollection)
		users.On("FindUserByEmail", mock.Anything, "test@example.com").Return(&inactive, nil)
		handler := NewAuthHandler(authService, users)

		w := httptest.NewRecorder()
		handler.Login(w, postJSON(t, "/api/auth/login", models.LoginRequest{Email: "test@example.com", Password: "password123"}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "deactivated")
	})

	t.Run("missing fields and bad json", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection))

		w := httptest.NewRecorder()
		handler.Login(w, postJSON(t, "/api/auth/login", models.LoginRequest{Email: "test@example.com"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{bad json")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Register(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)

	t.Run("successful registration", func(t *testing.T) {
		users := new(MockUserCollection)
		users.On("FindUserByEmail", mock.Anything, "new@example.com").Return(nil, db.ErrNotFound)
		users.On("InsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Email == "new@example.com" && u.Role == models.RoleUser && u.PasswordHash != "" && !u.ID.IsZero()
		})).Return(nil)
		handler := NewAuthHandler(authService, users)

		w := httptest.NewRecorder()
		handler.Register(w, postJSON(t, "/api/auth/register", models.RegisterRequest{
			Name:     "New User",
			Email:    "New@Example.com",
			Password: "password123",
		}))

		require.Equal(t, http.StatusCreated, w.Code)
		var resp models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.RoleUser, resp.User.Role)
		assert.NotEmpty(t, resp.Token)
		users.AssertExpectations(t)
	})

	t.Run("email already exists", func(t *testing.T) {
		users := new(MockUserCollection)
		users.On("FindUserByEmail", mock.Anything, "taken@example.com").Return(&models.User{Email: "taken@example.com"}, nil)
		handler := NewAuthHandler(authService, users)

		w := httptest.NewRecorder()
		handler.Register(w, postJSON(t, "/api/auth/register", models.RegisterRequest{
			Name:     "Someone",
			Email:    "taken@example.com",
			Password: "password123",
		}))
		assert.Equal(t, http.StatusConflict, w.Code)
		users.AssertNotCalled(t, "InsertUser", mock.Anything, mock.Anything)
	})

	invalid := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"missing name", models.RegisterRequest{Email: "a@example.com", Password: "password123"}},
		{"bad email", models.RegisterRequest{Name: "A", Email: "not-an-email", Password: "password123"}},
		{"short password", models.RegisterRequest{Name: "A", Email: "a@example.com", Password: "short"}},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			users := new(MockUserCollection)
			handler := NewAuthHandler(authService, users)

			w := httptest.NewRecorder()
			handler.Register(w, postJSON(t, "/api/auth/register", tc.req))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			users.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_GetProfile(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	user := &models.User{ID: primitive.NewObjectID(), Name: "Ana", Email: "ana@example.com", Role: models.RoleUser}

	users := new(MockUserCollection)
	users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)
	handler := NewAuthHandler(authService, users)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	claims := &models.Claims{UserID: user.ID.Hex(), Email: user.Email, Role: user.Role}
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))

	w := httptest.NewRecorder()
	handler.GetProfile(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ana@example.com")

	w = httptest.NewRecorder()
	handler.GetProfile(w, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
