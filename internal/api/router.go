package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guildquest/internal/auth"
	"guildquest/internal/config"
	"guildquest/internal/db"
	"guildquest/internal/live"
	"guildquest/internal/logging"
	"guildquest/internal/review"
)

// ReviewPolicy turns the review section of the config into a review.Policy.
func ReviewPolicy(cfg *config.Config) review.Policy {
	return review.Policy{
		ApprovalThreshold: cfg.Review.ApprovalThreshold,
		QuorumRatio:       cfg.Review.QuorumRatio,
		AllowSelfRating:   cfg.Review.AllowSelfRating,
	}
}

// SetupRouter wires every route against db.DB, which must be initialised first.
func SetupRouter(cfg *config.Config, sessions auth.SessionStore, bus live.Bus, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := live.NewPublisher(bus, logger)
	gw := review.NewGateway(db.DB, ReviewPolicy(cfg), review.WithNotifier(pub))

	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger(logger))
	subpath := cfg.Server.Subpath // e.g. "/guildquest"; empty serves from the root

	authed := auth.AuthMiddleware(cfg, sessions, false)
	admin := auth.AuthMiddleware(cfg, sessions, true)

	group := r.Group(subpath)
	{
		group.GET("/health", healthHandler)
		group.GET("/config", configHandler(cfg))

		// Setup: only if no users
		group.POST("/setup", SetupHandler())

		// Auth
		group.POST("/auth/register", RegisterHandler(cfg, sessions))
		group.POST("/auth/login", LoginHandler(cfg, sessions))
		group.POST("/auth/logout", authed, LogoutHandler(sessions))
		group.GET("/auth/me", authed, MeHandler())

		// Admin: users
		group.GET("/users", admin, ListUsersHandler())
		group.POST("/users", admin, CreateUserHandler())

		// User self-service
		group.GET("/users/me", authed, MeHandler())
		group.PUT("/users/me", authed, UpdateMeHandler())
		group.DELETE("/users/me", authed, DeleteMeHandler(sessions))
		group.GET("/users/online", OnlineUserCountHandler(sessions))

		// Admin: user by id
		group.GET("/users/:id", admin, GetUserByIdHandler())
		group.PUT("/users/:id", admin, UpdateUserByIdHandler())
		group.DELETE("/users/:id", admin, DeleteUserByIdHandler(sessions))

		group.GET("/leaderboard", authed, LeaderboardHandler())

		// Guilds
		group.GET("/guilds", authed, ListGuildsHandler(logger))
		group.POST("/guilds", authed, CreateGuildHandler(cfg, pub, logger))
		group.GET("/guilds/:id", authed, GetGuildHandler(logger))
		group.POST("/guilds/:id/join", authed, JoinGuildHandler(pub, logger))
		group.POST("/guilds/:id/leave", authed, LeaveGuildHandler(pub, logger))
		group.PUT("/guilds/:id/quest-master", authed, AppointQuestMasterHandler(pub, logger))
		group.GET("/guilds/:id/quest-masters", authed, QuestMasterHistoryHandler(logger))

		// Quests
		group.GET("/guilds/:id/quests", authed, ListQuestsHandler(logger))
		group.POST("/guilds/:id/quests", authed, CreateQuestHandler(cfg, pub, logger))
		group.POST("/quests/:id/archive", authed, ArchiveQuestHandler(pub, logger))

		// Submissions and peer review
		group.POST("/quests/:id/submissions", authed, SubmitProofHandler(gw, logger))
		group.GET("/guilds/:id/submissions", authed, ListSubmissionsHandler(gw, logger))
		group.GET("/submissions/:id", authed, GetSubmissionHandler(gw, logger))
		group.GET("/submissions/:id/ratings", authed, ListRatingsHandler(gw, logger))
		group.POST("/submissions/:id/ratings", authed, RateSubmissionHandler(gw, logger))
		group.POST("/admin/reconcile", admin, ReconcileHandler(gw, logger))

		// Guild chat
		group.GET("/guilds/:id/messages", authed, ListMessagesHandler(cfg, logger))
		group.POST("/guilds/:id/messages", authed, SendMessageHandler(cfg, pub, logger))
		group.DELETE("/messages/:id", authed, DeleteMessageHandler(pub, logger))

		// Live change feed
		group.GET("/ws/live", WSLiveHandler(cfg, sessions, bus, logger))
	}
	return r
}
