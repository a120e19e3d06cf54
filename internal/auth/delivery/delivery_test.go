package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"raid-mail-agent/internal/auth/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDevices struct {
	tokens map[string]string
}

func (m *memoryDevices) SaveToken(_ context.Context, operator, token, _ string) error {
	m.tokens[token] = operator
	return nil
}

func (m *memoryDevices) ListTokens(context.Context) ([]string, error) {
	var out []string
	for token := range m.tokens {
		out = append(out, token)
	}
	return out, nil
}

func (m *memoryDevices) DeleteToken(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

func setupRouter(t *testing.T) (*gin.Engine, *memoryDevices, string) {
	gin.SetMode(gin.TestMode)
	auth, err := usecase.NewAuthUsecase("a-test-secret-of-some-length", time.Hour)
	require.NoError(t, err)
	token, err := auth.IssueToken("alice")
	require.NoError(t, err)

	devices := &memoryDevices{tokens: map[string]string{}}
	handler := NewDeviceHandler(devices)
	r := gin.New()
	group := r.Group("/api/fcm", AuthMiddleware(auth))
	group.POST("/register", handler.RegisterFCMToken)
	group.DELETE("/:token", handler.UnregisterFCMToken)
	return r, devices, token.AccessToken
}

func TestAuthMiddleware(t *testing.T) {
	r, _, _ := setupRouter(t)

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/fcm/register", strings.NewReader(`{"token":"x"}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestDeviceRegistration(t *testing.T) {
	r, devices, token := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/fcm/register", strings.NewReader(`{"token":"device-1","device_info":"pixel"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", devices.tokens["device-1"])

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/fcm/register", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/fcm/device-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, devices.tokens)
}
