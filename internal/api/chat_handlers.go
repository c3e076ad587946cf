package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guildquest/internal/chat"
	"guildquest/internal/config"
	"guildquest/internal/db"
	"guildquest/internal/live"
)

func roomParam(c *gin.Context) chat.Room {
	if r := c.Query("room"); r != "" {
		return chat.Room(r)
	}
	return chat.RoomNormal
}

// GET /guilds/:id/messages?room=normal|quest
func ListMessagesHandler(cfg *config.Config, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("id")
		if _, ok := requireMember(c, logger, guildID); !ok {
			return
		}
		msgs, err := chat.History(c.Request.Context(), db.DB, guildID, roomParam(c), cfg.Chat.HistoryLimit)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

type SendMessageRequest struct {
	Room     chat.Room `json:"chatroom_type"`
	Content  string    `json:"content"`
	FileURL  string    `json:"file_url"`
	FileType string    `json:"file_type"`
}

// POST /guilds/:id/messages
func SendMessageHandler(cfg *config.Config, pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("id")
		m, ok := requireMember(c, logger, guildID)
		if !ok {
			return
		}
		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		msg, err := chat.Send(c.Request.Context(), db.DB, chat.NewMessage{
			GuildID:  guildID,
			UserID:   m.UserID,
			Room:     req.Room,
			Content:  req.Content,
			FileURL:  req.FileURL,
			FileType: req.FileType,
		}, cfg.Chat.MaxMessageChars)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		pub.Publish(c.Request.Context(), live.TableMessages, live.ActionInsert, guildID, msg.ID, msg)
		c.JSON(http.StatusCreated, msg)
	}
}

// DELETE /messages/:id  [author only]
func DeleteMessageHandler(pub *live.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		msg, err := chat.Delete(c.Request.Context(), db.DB, c.Param("id"), userID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		pub.Publish(c.Request.Context(), live.TableMessages, live.ActionDelete, msg.GuildID, msg.ID, gin.H{"id": msg.ID})
		c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
	}
}
