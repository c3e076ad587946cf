package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guildquest/internal/chat"
	"guildquest/internal/guild"
	"guildquest/internal/quest"
	"guildquest/internal/review"
)

// getUserIDFromContext returns the authenticated user ID set by auth.AuthMiddleware.
func getUserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get("userId")
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func isSiteAdmin(c *gin.Context) bool {
	return c.GetString("userRole") == "admin"
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": gin.H{"message": message}})
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// domainErrors maps package sentinels to HTTP statuses. First match wins.
var domainErrors = []errorMapping{
	{review.ErrInvalidVerdict, http.StatusBadRequest, "invalid_verdict"},
	{review.ErrMissingProof, http.StatusBadRequest, "missing_proof"},
	{review.ErrSubmissionNotFound, http.StatusNotFound, "submission_not_found"},
	{review.ErrSelfRating, http.StatusForbidden, "self_rating"},
	{review.ErrNotGuildMember, http.StatusForbidden, "not_guild_member"},
	{review.ErrDuplicateRating, http.StatusConflict, "duplicate_rating"},
	{review.ErrSubmissionNotPending, http.StatusConflict, "submission_not_pending"},
	{review.ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
	{review.ErrQuestNotActive, http.StatusConflict, "quest_not_active"},
	{review.ErrSubmissionConflict, http.StatusConflict, "submission_conflict"},
	{review.ErrRewardApplicationFailed, http.StatusInternalServerError, "reward_failed"},
	{review.ErrStorageUnavailable, http.StatusServiceUnavailable, "storage_unavailable"},
	{quest.ErrQuestNotFound, http.StatusNotFound, "quest_not_found"},
	{quest.ErrInvalidDifficulty, http.StatusBadRequest, "invalid_difficulty"},
	{quest.ErrMissingDetails, http.StatusBadRequest, "missing_details"},
	{guild.ErrGuildNotFound, http.StatusNotFound, "guild_not_found"},
	{guild.ErrGuildFull, http.StatusConflict, "guild_full"},
	{guild.ErrAlreadyMember, http.StatusConflict, "already_member"},
	{guild.ErrNotMember, http.StatusForbidden, "not_guild_member"},
	{guild.ErrForbidden, http.StatusForbidden, "forbidden"},
	{guild.ErrAdminCannotLeave, http.StatusConflict, "admin_cannot_leave"},
	{guild.ErrInvalidAppointee, http.StatusBadRequest, "invalid_appointee"},
	{chat.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
	{chat.ErrMessageTooLong, http.StatusBadRequest, "message_too_long"},
	{chat.ErrInvalidRoom, http.StatusBadRequest, "invalid_room"},
	{chat.ErrNotFound, http.StatusNotFound, "message_not_found"},
	{chat.ErrNotAuthor, http.StatusForbidden, "not_author"},
}

// respondDomainError writes the mapped status for err. Unmapped errors are logged as 500s.
func respondDomainError(c *gin.Context, logger *zap.Logger, err error) {
	for _, m := range domainErrors {
		if !errors.Is(err, m.err) {
			continue
		}
		if m.status >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		body := gin.H{"message": m.err.Error(), "code": m.code}
		if review.IsRetryable(err) {
			body["retryable"] = true
		}
		c.JSON(m.status, gin.H{"error": body})
		return
	}
	logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	respondError(c, http.StatusInternalServerError, "Internal error")
}
