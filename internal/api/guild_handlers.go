package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guildquest/internal/config"
	"guildquest/internal/db"
	"guildquest/internal/guild"
	"guildquest/internal/live"
)

// requireMember loads the caller's membership of guildID or writes a 403/404.
func requireMember(c *gin.Context, logger *zap.Logger, guildID string) (*guild.Member, bool) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	m, err := guild.Membership(c.Request.Context(), db.DB, guildID, userID)
	if err != nil {
		if errors.Is(err, guild.ErrNotMember) {
			if _, gerr := guild.Get(c.Request.Context(), db.DB, guildID); errors.Is(gerr, guild.ErrGuildNotFound) {
				err = gerr
			}
		}
		respondDomainError(c, logger, err)
		return nil, false
	}
	return m, true
}

// GET /guilds
func ListGuildsHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		guilds, err := guild.List(c.Request.Context(), db.DB, userID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, guilds)
	}
}

type CreateGuildRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Privacy     string `json:"privacy"`
	AvatarURL   string `json:"avatar_url"`
	MemberLimit int    `json:"member_limit"`
}

// POST /guilds; the creator becomes the guild admin.
func CreateGuildHandler(cfg *config.Config, pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		var req CreateGuildRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			respondError(c, http.StatusBadRequest, "Guild name required")
			return
		}
		if req.Privacy != "" && req.Privacy != "public" && req.Privacy != "private" {
			respondError(c, http.StatusBadRequest, "Privacy must be public or private")
			return
		}
		if req.MemberLimit < 0 {
			respondError(c, http.StatusBadRequest, "Member limit must be positive")
			return
		}
		g := &guild.Guild{
			Name:        req.Name,
			Description: strings.TrimSpace(req.Description),
			Category:    req.Category,
			Privacy:     req.Privacy,
			AvatarURL:   req.AvatarURL,
			MemberLimit: req.MemberLimit,
		}
		if err := guild.Create(c.Request.Context(), db.DB, g, userID, cfg.Guilds.DefaultMemberLimit); err != nil {
			respondDomainError(c, logger, err)
			return
		}
		logger.Info("guild created", zap.String("guild_id", g.ID), zap.String("user_id", userID))
		c.JSON(http.StatusCreated, g)
	}
}

// GET /guilds/:id
func GetGuildHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := guild.Get(ctx, db.DB, c.Param("id"))
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		members, err := guild.Members(ctx, db.DB, g.ID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		userID, _ := getUserIDFromContext(c)
		var myRole guild.Role
		for _, m := range members {
			if m.UserID == userID {
				myRole = m.Role
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"guild":        g,
			"members":      members,
			"member_count": len(members),
			"my_role":      myRole,
		})
	}
}

// POST /guilds/:id/join
func JoinGuildHandler(pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		m, err := guild.Join(c.Request.Context(), db.DB, c.Param("id"), userID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		pub.Publish(c.Request.Context(), live.TableMembers, live.ActionInsert, m.GuildID, m.ID, m)
		c.JSON(http.StatusCreated, m)
	}
}

// POST /guilds/:id/leave
func LeaveGuildHandler(pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		guildID := c.Param("id")
		if err := guild.Leave(c.Request.Context(), db.DB, guildID, userID, time.Now().UTC()); err != nil {
			respondDomainError(c, logger, err)
			return
		}
		pub.Publish(c.Request.Context(), live.TableMembers, live.ActionDelete, guildID, userID, gin.H{"group_id": guildID, "user_id": userID})
		c.JSON(http.StatusOK, gin.H{"message": "Left guild"})
	}
}

// PUT /guilds/:id/quest-master  [guild admin]
func AppointQuestMasterHandler(pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, _ := getUserIDFromContext(c)
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
			respondError(c, http.StatusBadRequest, "user_id required")
			return
		}
		guildID := c.Param("id")
		if err := guild.AppointQuestMaster(c.Request.Context(), db.DB, guildID, actorID, req.UserID, time.Now().UTC()); err != nil {
			respondDomainError(c, logger, err)
			return
		}
		pub.Publish(c.Request.Context(), live.TableMembers, live.ActionUpdate, guildID, req.UserID,
			gin.H{"group_id": guildID, "user_id": req.UserID, "role": guild.RoleQuestMaster})
		c.JSON(http.StatusOK, gin.H{"message": "Quest master appointed"})
	}
}

// GET /guilds/:id/quest-masters
func QuestMasterHistoryHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("id")
		if _, ok := requireMember(c, logger, guildID); !ok {
			return
		}
		terms, err := guild.QuestMasterHistory(c.Request.Context(), db.DB, guildID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, terms)
	}
}
