package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildquest/internal/config"
)

func newProtectedRouter(sessions SessionStore, requireAdmin bool) *gin.Engine {
	cfg := config.Default()
	cfg.Server.JWTSecret = testSecret
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg, sessions, requireAdmin))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userId"))
	})
	return r
}

func doGet(r *gin.Engine, bearer string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessions()
	userTok, err := GenerateJWT(testSecret, "u1", "alice", "user", time.Hour)
	require.NoError(t, err)
	adminTok, err := GenerateJWT(testSecret, "a1", "root", "admin", time.Hour)
	require.NoError(t, err)
	staleTok, err := GenerateJWT(testSecret, "u2", "bob", "user", time.Hour)
	require.NoError(t, err)
	require.NoError(t, sessions.Set(ctx, "u1", userTok, time.Minute))
	require.NoError(t, sessions.Set(ctx, "a1", adminTok, time.Minute))
	require.NoError(t, sessions.Set(ctx, "u2", "a-newer-token", time.Minute))

	open := newProtectedRouter(sessions, false)
	admin := newProtectedRouter(sessions, true)

	assert.Equal(t, http.StatusUnauthorized, doGet(open, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(open, "not.a.valid.jwt").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(open, staleTok).Code, "token superseded by a newer login")

	w := doGet(open, userTok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	assert.Equal(t, http.StatusForbidden, doGet(admin, userTok).Code)
	assert.Equal(t, http.StatusOK, doGet(admin, adminTok).Code)

	require.NoError(t, sessions.Delete(ctx, "u1"))
	assert.Equal(t, http.StatusUnauthorized, doGet(open, userTok).Code, "logged out")
}
