package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"guildquest/internal/auth"
	"guildquest/internal/db"
	"guildquest/internal/dbutil"
	"guildquest/internal/guild"
	"guildquest/internal/user"
)

func adminView(u *user.User) gin.H {
	return gin.H{
		"id":           u.ID,
		"username":     u.Username,
		"role":         u.Role,
		"quest_points": u.QuestPoints,
		"level":        u.Level,
		"createdAt":    u.CreatedAt,
	}
}

// GET /users  [admin only]
func ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isSiteAdmin(c) {
			respondError(c, http.StatusForbidden, "Forbidden")
			return
		}
		var users []user.User
		if err := db.DB.WithContext(c.Request.Context()).Order("created_at asc").Find(&users).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "List error")
			return
		}
		result := make([]gin.H, 0, len(users))
		for i := range users {
			result = append(result, adminView(&users[i]))
		}
		c.JSON(http.StatusOK, result)
	}
}

// POST /users  [admin only]
func CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isSiteAdmin(c) {
			respondError(c, http.StatusForbidden, "Forbidden")
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
			respondError(c, http.StatusBadRequest, "Missing username or password")
			return
		}
		pwHash, err := user.HashPassword(req.Password)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Password hash failed")
			return
		}
		newUser := user.User{
			Username:     strings.TrimSpace(req.Username),
			PasswordHash: pwHash,
			Role:         user.RoleUser,
		}
		if err := db.DB.WithContext(c.Request.Context()).Create(&newUser).Error; err != nil {
			if dbutil.IsUniqueViolation(err) {
				respondError(c, http.StatusConflict, "Username already exists")
				return
			}
			respondError(c, http.StatusInternalServerError, "Create error")
			return
		}
		c.JSON(http.StatusCreated, adminView(&newUser))
	}
}

type UpdateMeRequest struct {
	Password  string  `json:"password,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// PUT /users/me
func UpdateMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		var req UpdateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		updates := map[string]any{}
		if req.Password != "" {
			pwHash, err := user.HashPassword(req.Password)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "Password hash failed")
				return
			}
			updates["password_hash"] = pwHash
		}
		if req.Bio != nil {
			updates["bio"] = strings.TrimSpace(*req.Bio)
		}
		if req.AvatarURL != nil {
			updates["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
		}
		if len(updates) == 0 {
			respondError(c, http.StatusBadRequest, "Nothing to update")
			return
		}
		res := db.DB.WithContext(c.Request.Context()).Model(&user.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			respondError(c, http.StatusInternalServerError, "Update error")
			return
		}
		if res.RowsAffected == 0 {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated"})
	}
}

// deleteUser removes the account and its guild memberships. Guild admins must hand
// their guild over first, so a guild is never left without an admin.
func deleteUser(c *gin.Context, sessions auth.SessionStore, userID string) {
	err := db.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var admins int64
		if err := tx.Model(&guild.Member{}).Where("user_id = ? AND role = ?", userID, guild.RoleAdmin).Count(&admins).Error; err != nil {
			return err
		}
		if admins > 0 {
			return guild.ErrAdminCannotLeave
		}
		if err := tx.Where("user_id = ?", userID).Delete(&guild.Member{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user.User{}, "id = ?", userID).Error
	})
	if err != nil {
		if errors.Is(err, guild.ErrAdminCannotLeave) {
			respondError(c, http.StatusConflict, "User is a guild admin")
			return
		}
		respondError(c, http.StatusInternalServerError, "Delete error")
		return
	}
	_ = sessions.Delete(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// DELETE /users/me
func DeleteMeHandler(sessions auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		deleteUser(c, sessions, userID)
	}
}

// GET /users/:id  [admin only]
func GetUserByIdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isSiteAdmin(c) {
			respondError(c, http.StatusForbidden, "Forbidden")
			return
		}
		var u user.User
		if err := db.DB.WithContext(c.Request.Context()).First(&u, "id = ?", c.Param("id")).Error; err != nil {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		c.JSON(http.StatusOK, adminView(&u))
	}
}

type UpdateUserRequest struct {
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

// PUT /users/:id  [admin only]
func UpdateUserByIdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isSiteAdmin(c) {
			respondError(c, http.StatusForbidden, "Forbidden")
			return
		}
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		var u user.User
		if err := db.DB.WithContext(c.Request.Context()).First(&u, "id = ?", c.Param("id")).Error; err != nil {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		updates := map[string]any{}
		if req.Password != "" {
			pwHash, err := user.HashPassword(req.Password)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "Password hash failed")
				return
			}
			updates["password_hash"] = pwHash
		}
		if req.Role == string(user.RoleAdmin) || req.Role == string(user.RoleUser) {
			updates["role"] = req.Role
		}
		if len(updates) > 0 {
			if err := db.DB.WithContext(c.Request.Context()).Model(&u).Updates(updates).Error; err != nil {
				respondError(c, http.StatusInternalServerError, "Update error")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated"})
	}
}

// DELETE /users/:id  [admin only]
func DeleteUserByIdHandler(sessions auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isSiteAdmin(c) {
			respondError(c, http.StatusForbidden, "Forbidden")
			return
		}
		deleteUser(c, sessions, c.Param("id"))
	}
}
