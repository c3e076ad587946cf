package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"guildquest/internal/auth"
	"guildquest/internal/config"
	"guildquest/internal/live"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 2 * wsPingInterval
	wsWriteWait    = 10 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket connection wrapper with mutex for thread-safe writes
type safeWSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *safeWSConn) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *safeWSConn) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *safeWSConn) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

func (s *safeWSConn) Close() error {
	return s.conn.Close()
}

// GET /ws/live?token=...&guild_id=...&tables=quests,messages
//
// Streams committed changes of one guild to a member. The client only reads;
// anything it sends is discarded.
func WSLiveHandler(cfg *config.Config, sessions auth.SessionStore, bus live.Bus, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			respondError(c, http.StatusUnauthorized, "missing JWT")
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")
		claims, err := auth.ParseJWT(cfg.Server.JWTSecret, token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid JWT")
			return
		}
		if current, err := sessions.Get(c.Request.Context(), claims.UserID); err != nil || current != token {
			respondError(c, http.StatusUnauthorized, "Session expired or invalid")
			return
		}
		c.Set("userId", claims.UserID)

		guildID := c.Query("guild_id")
		if guildID == "" {
			respondError(c, http.StatusBadRequest, "guild_id required")
			return
		}
		if _, ok := requireMember(c, logger, guildID); !ok {
			return
		}
		filter := live.Filter{GuildID: guildID}
		if raw := c.Query("tables"); raw != "" {
			filter.Tables = strings.Split(raw, ",")
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		events, err := bus.Subscribe(ctx, filter)
		if err != nil {
			respondDomainError(c, logger, err)
			return
		}

		rawConn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		conn := &safeWSConn{conn: rawConn}
		defer conn.Close()
		log := logger.With(zap.String("user_id", claims.UserID), zap.String("guild_id", guildID))
		log.Debug("live subscriber connected")

		_ = rawConn.SetReadDeadline(time.Now().Add(wsPongWait))
		rawConn.SetPongHandler(func(string) error {
			return rawConn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("live subscriber disconnected")
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(e); err != nil {
					log.Debug("live write failed", zap.Error(err))
					return
				}
			case <-ticker.C:
				if err := conn.Ping(); err != nil {
					return
				}
			}
		}
	}
}
