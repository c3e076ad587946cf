package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"guildquest/internal/config"
	"guildquest/internal/user"
)

// AuthMiddleware validates the bearer token against the session store and puts
// userId, username and userRole on the gin context.
func AuthMiddleware(cfg *config.Config, sessions SessionStore, requireAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Missing or invalid Authorization header"}})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ParseJWT(cfg.Server.JWTSecret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token"}})
			return
		}
		ctx := c.Request.Context()
		sessionToken, err := sessions.Get(ctx, claims.UserID)
		if err != nil || sessionToken != tokenStr {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Session expired or invalid"}})
			return
		}
		_ = sessions.Set(ctx, claims.UserID, tokenStr, SessionTTL)

		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("userRole", claims.Role)

		if requireAdmin && claims.Role != string(user.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Admin only"}})
			return
		}
		c.Next()
	}
}
