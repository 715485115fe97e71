package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adforge/backend/internal/models"
)

type fakeUserStore struct {
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*models.User{}}
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	if _, ok := s.users[email]; ok {
		return nil, ErrEmailTaken
	}
	u := &models.User{ID: uuid.New(), Email: email, Password: passwordHash}
	s.users[email] = u
	cp := *u
	return &cp, nil
}

func newAuthHandler() (*Handler, *fakeUserStore, *JWTService) {
	gin.SetMode(gin.TestMode)
	store := newFakeUserStore()
	svc := NewJWTService("test-secret", 1)
	return NewHandler(store, svc, zap.NewNop()), store, svc
}

func postAuth(t *testing.T, body string, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func TestRegisterSuccess(t *testing.T) {
	h, _, svc := newAuthHandler()

	w := postAuth(t, `{"email": "user@example.com", "password": "secret-pass"}`, h.Register)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool          `json:"success"`
		Data    TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "user@example.com", resp.Data.User.Email)

	claims, err := svc.Validate(resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Data.User.ID, claims.UserID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, _, _ := newAuthHandler()

	w := postAuth(t, `{"email": "user@example.com", "password": "secret-pass"}`, h.Register)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postAuth(t, `{"email": "user@example.com", "password": "other-pass-1"}`, h.Register)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already registered")
}

func TestRegisterWeakPassword(t *testing.T) {
	h, _, _ := newAuthHandler()
	w := postAuth(t, `{"email": "user@example.com", "password": "short"}`, h.Register)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginRoundTrip(t *testing.T) {
	h, _, _ := newAuthHandler()

	w := postAuth(t, `{"email": "user@example.com", "password": "secret-pass"}`, h.Register)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postAuth(t, `{"email": "user@example.com", "password": "secret-pass"}`, h.Login)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	h, _, _ := newAuthHandler()

	w := postAuth(t, `{"email": "user@example.com", "password": "secret-pass"}`, h.Register)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postAuth(t, `{"email": "user@example.com", "password": "wrong-pass-1"}`, h.Login)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	h, _, _ := newAuthHandler()
	w := postAuth(t, `{"email": "nobody@example.com", "password": "secret-pass"}`, h.Login)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
