package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guildquest/internal/db"
	"guildquest/internal/guild"
	"guildquest/internal/review"
)

// rateAttempts bounds retries of a rating that lost a race on the submission row.
const rateAttempts = 3

type SubmitRequest struct {
	ProofText     string `json:"proof_text"`
	ProofFileURL  string `json:"proof_file_url"`
	ProofFileType string `json:"proof_file_type"`
}

// POST /quests/:id/submissions
func SubmitProofHandler(gw *review.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := getUserIDFromContext(c)
		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		v, err := gw.Submit(c.Request.Context(), review.SubmitRequest{
			QuestID:       c.Param("id"),
			UserID:        userID,
			ProofText:     req.ProofText,
			ProofFileURL:  req.ProofFileURL,
			ProofFileType: req.ProofFileType,
		})
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, v)
	}
}

// GET /guilds/:id/submissions?status=&quest_id=&user_id=&limit=
func ListSubmissionsHandler(gw *review.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("id")
		m, ok := requireMember(c, logger, guildID)
		if !ok {
			return
		}
		f := review.Filter{
			GuildID:  guildID,
			QuestID:  c.Query("quest_id"),
			UserID:   c.Query("user_id"),
			Status:   review.Status(c.Query("status")),
			ViewerID: m.UserID,
		}
		switch f.Status {
		case "", review.StatusPending, review.StatusCompleted, review.StatusRejected:
		default:
			respondError(c, http.StatusBadRequest, "status must be pending, completed or rejected")
			return
		}
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				respondError(c, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			f.Limit = n
		}
		subs, err := gw.List(c.Request.Context(), f)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, subs)
	}
}

// requireSubmissionMember checks that the caller belongs to the submission's guild.
// Non-members get the same 404 as a missing submission.
func requireSubmissionMember(c *gin.Context, gw *review.Gateway, logger *zap.Logger) (string, bool) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return "", false
	}
	ctx := c.Request.Context()
	guildID, err := gw.GuildOf(ctx, c.Param("id"))
	if err == nil {
		_, err = guild.Membership(ctx, db.DB, guildID, userID)
		if errors.Is(err, guild.ErrNotMember) {
			err = review.ErrSubmissionNotFound
		}
	}
	if err != nil {
		respondDomainError(c, logger, err)
		return "", false
	}
	return userID, true
}

// GET /submissions/:id
func GetSubmissionHandler(gw *review.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireSubmissionMember(c, gw, logger)
		if !ok {
			return
		}
		v, err := gw.Get(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// GET /submissions/:id/ratings
func ListRatingsHandler(gw *review.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSubmissionMember(c, gw, logger); !ok {
			return
		}
		ratings, err := gw.Ratings(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, ratings)
	}
}

type RateRequest struct {
	Rating review.Verdict `json:"rating"`
}

// rater is the part of review.Gateway that rateWithRetry drives.
type rater interface {
	Rate(ctx context.Context, submissionID, raterID string, v review.Verdict) (*review.SubmissionView, error)
}

// rateWithRetry repeats Rate while it loses the optimistic-concurrency race.
// Each failed attempt rolled back completely, so repeating is safe.
func rateWithRetry(ctx context.Context, gw rater, submissionID, raterID string, v review.Verdict) (*review.SubmissionView, error) {
	var err error
	for attempt := 0; attempt < rateAttempts; attempt++ {
		var view *review.SubmissionView
		view, err = gw.Rate(ctx, submissionID, raterID, v)
		if !errors.Is(err, review.ErrSubmissionConflict) {
			return view, err
		}
	}
	return nil, err
}

// POST /submissions/:id/ratings
func RateSubmissionHandler(gw *review.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raterID, _ := getUserIDFromContext(c)
		var req RateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request")
			return
		}
		v, err := rateWithRetry(c.Request.Context(), gw, c.Param("id"), raterID, req.Rating)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		if v.Status != review.StatusPending {
			fields := []zap.Field{
				zap.String("submission_id", v.ID),
				zap.String("status", string(v.Status)),
				zap.Int("approvals", v.ApprovalCount),
				zap.Int("rejections", v.RejectionCount),
			}
			if v.Reward != nil {
				fields = append(fields, zap.String("member_id", v.Reward.UserID), zap.Int("points", v.Reward.PointsAwarded))
			}
			logger.Info("submission resolved", fields...)
		}
		c.JSON(http.StatusOK, v)
	}
}

// POST /admin/reconcile?guild_id=  [site admin]
func ReconcileHandler(gw *review.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reports, err := gw.ReconcileAll(c.Request.Context(), c.Query("guild_id"))
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}
		changed := make([]review.ReconcileReport, 0)
		for _, r := range reports {
			if r.Changed() {
				changed = append(changed, r)
			}
		}
		logger.Info("reconcile finished", zap.Int("checked", len(reports)), zap.Int("repaired", len(changed)))
		c.JSON(http.StatusOK, gin.H{"checked": len(reports), "repaired": changed})
	}
}
