package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guildquest/internal/config"
	"guildquest/internal/db"
	"guildquest/internal/live"
	"guildquest/internal/quest"
)

func pointTable(cfg *config.Config) quest.PointTable {
	p := cfg.Quests.Points
	return quest.PointTable{Easy: p.Easy, Medium: p.Medium, Hard: p.Hard}
}

// GET /guilds/:id/quests
func ListQuestsHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("id")
		if _, ok := requireMember(c, logger, guildID); !ok {
			return
		}
		quests, err := quest.ListActive(c.Request.Context(), db.DB, guildID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, quests)
	}
}

type CreateQuestRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Difficulty  quest.Difficulty `json:"difficulty"`
	Deadline    *time.Time       `json:"deadline"`
}

// POST /guilds/:id/quests  [quest master or guild admin]
func CreateQuestHandler(cfg *config.Config, pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("id")
		m, ok := requireMember(c, logger, guildID)
		if !ok {
			return
		}
		if !m.Role.CanManageQuests() {
			respondError(c, http.StatusForbidden, "Only quest masters and guild admins can create quests")
			return
		}
		var req CreateQuestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		q, err := quest.Create(c.Request.Context(), db.DB, pointTable(cfg), quest.NewQuest{
			GuildID:     guildID,
			CreatedBy:   m.UserID,
			Title:       req.Title,
			Description: req.Description,
			Difficulty:  req.Difficulty,
			Deadline:    req.Deadline,
		})
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		pub.Publish(c.Request.Context(), live.TableQuests, live.ActionInsert, q.GuildID, q.ID, q)
		c.JSON(http.StatusCreated, q)
	}
}

// POST /quests/:id/archive  [quest master or guild admin]
func ArchiveQuestHandler(pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		q, err := quest.Get(ctx, db.DB, c.Param("id"))
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		m, ok := requireMember(c, logger, q.GuildID)
		if !ok {
			return
		}
		if !m.Role.CanManageQuests() {
			respondError(c, http.StatusForbidden, "Only quest masters and guild admins can archive quests")
			return
		}
		q, err = quest.Archive(ctx, db.DB, q.ID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		pub.Publish(ctx, live.TableQuests, live.ActionUpdate, q.GuildID, q.ID, q)
		c.JSON(http.StatusOK, q)
	}
}
