package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"guildquest/internal/auth"
	"guildquest/internal/config"
	"guildquest/internal/db"
	"guildquest/internal/dbutil"
	"guildquest/internal/user"
)

const tokenLifetime = 7 * 24 * time.Hour

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func issueToken(c *gin.Context, cfg *config.Config, sessions auth.SessionStore, u *user.User) (LoginResponse, error) {
	token, err := auth.GenerateJWT(cfg.Server.JWTSecret, u.ID, u.Username, string(u.Role), tokenLifetime)
	if err != nil {
		return LoginResponse{}, err
	}
	if err := sessions.Set(c.Request.Context(), u.ID, token, auth.SessionTTL); err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{Token: token, UserID: u.ID, Username: u.Username, Role: string(u.Role)}, nil
}

// POST /auth/register opens a plain account once setup is complete.
func RegisterHandler(cfg *config.Config, sessions auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		exists, err := usersExist()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "DB error")
			return
		}
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Initial setup required", "need_setup": true}})
			return
		}
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || len(req.Password) < 6 {
			respondError(c, http.StatusBadRequest, "Username and a password of at least 6 characters required")
			return
		}
		pwHash, err := user.HashPassword(req.Password)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Password hash failed")
			return
		}
		u := user.User{Username: req.Username, PasswordHash: pwHash, Role: user.RoleUser}
		if err := db.DB.WithContext(c.Request.Context()).Create(&u).Error; err != nil {
			if dbutil.IsUniqueViolation(err) {
				respondError(c, http.StatusConflict, "Username already exists")
				return
			}
			respondError(c, http.StatusInternalServerError, "DB error")
			return
		}
		resp, err := issueToken(c, cfg, sessions, &u)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to start session")
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func LoginHandler(cfg *config.Config, sessions auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		// If no users exist, indicate need for setup
		exists, err := usersExist()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "DB error")
			return
		}
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Initial setup required", "need_setup": true}})
			return
		}
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		var u user.User
		if err := db.DB.WithContext(c.Request.Context()).Where("username = ?", req.Username).First(&u).Error; err != nil {
			respondError(c, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		if err := user.CheckPassword(u.PasswordHash, req.Password); err != nil {
			respondError(c, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		resp, err := issueToken(c, cfg, sessions, &u)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to generate token")
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func LogoutHandler(sessions auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		_ = sessions.Delete(c.Request.Context(), userID)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// GET /auth/me and GET /users/me
func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		var u user.User
		if err := db.DB.WithContext(c.Request.Context()).First(&u, "id = ?", userID).Error; err != nil {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		c.JSON(http.StatusOK, u.Public())
	}
}

// OnlineUserCountHandler returns the number of unique online users.
func OnlineUserCountHandler(sessions auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := sessions.OnlineCount(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to count online users")
			return
		}
		c.JSON(http.StatusOK, gin.H{"online": count})
	}
}

const leaderboardSize = 100

// GET /leaderboard returns the top members by quest points.
func LeaderboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []user.User
		if err := db.DB.WithContext(c.Request.Context()).
			Order("quest_points desc, username asc").
			Limit(leaderboardSize).
			Find(&users).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "List error")
			return
		}
		result := make([]gin.H, 0, len(users))
		for i, u := range users {
			result = append(result, gin.H{
				"rank":         i + 1,
				"id":           u.ID,
				"username":     u.Username,
				"avatar_url":   u.AvatarURL,
				"quest_points": u.QuestPoints,
				"level":        u.Level,
			})
		}
		c.JSON(http.StatusOK, result)
	}
}
