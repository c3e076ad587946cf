package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_ReturnsOk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", healthHandler)

	w := doJSON(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestConfigHandler_HidesSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Server.JWTSecret = "super-secret-value"
	cfg.Postgres.DSN = "postgres://user:hunter2@db/guildquest"
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/config", configHandler(cfg))

	w := doJSON(r, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"approval_threshold":80`)
	assert.Contains(t, body, `"quorum_ratio":0.5`)
	assert.NotContains(t, body, "super-secret-value")
	assert.NotContains(t, body, "hunter2")
}
