package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"guildquest/internal/db"
	"guildquest/internal/dbutil"
	"guildquest/internal/user"
)

type SetupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func usersExist() (bool, error) {
	var count int64
	if err := db.DB.Model(&user.User{}).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// POST /setup creates the first site admin. It is refused once any user exists.
func SetupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exists, err := usersExist()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "DB error")
			return
		}
		if exists {
			respondError(c, http.StatusForbidden, "Setup not allowed; users already exist")
			return
		}
		var req SetupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			respondError(c, http.StatusBadRequest, "Username and password required")
			return
		}
		pwHash, err := user.HashPassword(req.Password)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Password hash failed")
			return
		}
		u := user.User{
			Username:     req.Username,
			PasswordHash: pwHash,
			Role:         user.RoleAdmin,
		}
		if err := db.DB.WithContext(c.Request.Context()).Create(&u).Error; err != nil {
			if dbutil.IsUniqueViolation(err) {
				respondError(c, http.StatusBadRequest, "Username already exists")
				return
			}
			respondError(c, http.StatusInternalServerError, "DB error")
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"id":             u.ID,
			"username":       u.Username,
			"role":           u.Role,
			"createdAt":      u.CreatedAt,
			"setup_complete": true,
		})
	}
}
