package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"guildquest/internal/auth"
	"guildquest/internal/config"
	"guildquest/internal/live"
	"guildquest/internal/user"
)

// testServer is the full router over an in-memory database, session store and bus.
type testServer struct {
	t        *testing.T
	cfg      *config.Config
	sessions *auth.MemorySessions
	bus      *live.MemoryBus
	router   *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLogger(t, zaptest.NewLogger(t))
}

// newTestServerWithLogger is for tests whose handlers outlive the test body, such as
// websocket streams, where a zaptest logger would be written to after completion.
func newTestServerWithLogger(t *testing.T, logger *zap.Logger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	setupTestDB(t)
	s := &testServer{
		t:        t,
		cfg:      testConfig(),
		sessions: auth.NewMemorySessions(),
		bus:      live.NewMemoryBus(),
	}
	s.router = SetupRouter(s.cfg, s.sessions, s.bus, logger)
	t.Cleanup(func() { _ = s.bus.Close() })
	return s
}

// login starts a session for u the way LoginHandler does and returns the bearer token.
func (s *testServer) login(u user.User) string {
	s.t.Helper()
	token, err := auth.GenerateJWT(s.cfg.Server.JWTSecret, u.ID, u.Username, string(u.Role), tokenLifetime)
	require.NoError(s.t, err)
	require.NoError(s.t, s.sessions.Set(context.Background(), u.ID, token, auth.SessionTTL))
	return token
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	if token == "" {
		return doJSON(s.router, method, path, body)
	}
	return doJSON(s.router, method, path, body, "Authorization", "Bearer "+token)
}

func TestSetupRouter_PublicRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/config", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/users/online", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"online":0}`, w.Body.String())
}

func TestSetupRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/auth/me", "/guilds", "/leaderboard", "/submissions/x"} {
		w := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestSetupRouter_AdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := seedUser(t, "admin", user.RoleAdmin)
	member := seedUser(t, "member", user.RoleUser)

	w := s.do(http.MethodGet, "/users", s.login(member), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/admin/reconcile", s.login(member), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/users", s.login(admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[[]map[string]any](t, w)
	assert.Len(t, users, 2)
}

func TestSetupRouter_Subpath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupTestDB(t)
	cfg := testConfig()
	cfg.Server.Subpath = "/guildquest"
	r := SetupRouter(cfg, auth.NewMemorySessions(), live.NewMemoryBus(), nil)

	w := doJSON(r, http.MethodGet, "/guildquest/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewPolicy_FromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Review.ApprovalThreshold = 66
	cfg.Review.QuorumRatio = 0.25
	cfg.Review.AllowSelfRating = true

	p := ReviewPolicy(cfg)
	assert.Equal(t, 66.0, p.ApprovalThreshold)
	assert.Equal(t, 0.25, p.QuorumRatio)
	assert.True(t, p.AllowSelfRating)
}
