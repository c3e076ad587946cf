package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"guildquest/internal/api"
	"guildquest/internal/auth"
	"guildquest/internal/db"
	"guildquest/internal/live"
	redisdb "guildquest/internal/redis"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE:  runServe,
}

// backends picks Redis for sessions and live events when enabled, in-process otherwise.
// The returned close func releases whatever was opened.
func backends(ctx context.Context) (auth.SessionStore, live.Bus, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Warn("redis disabled; sessions and live events are local to this process")
		bus := live.NewMemoryBus()
		return auth.NewMemorySessions(), bus, func() { _ = bus.Close() }, nil
	}
	rdb, err := redisdb.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	bus := live.NewRedisBus(rdb, logger)
	closeAll := func() {
		_ = bus.Close()
		_ = rdb.Close()
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return auth.NewRedisSessions(rdb), bus, closeAll, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwtSecret must be set")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := initDB(); err != nil {
		return err
	}
	defer db.Close()

	sessions, bus, closeBackends, err := backends(ctx)
	if err != nil {
		return err
	}
	defer closeBackends()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRouter(cfg, sessions, bus, logger),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("subpath", cfg.Server.Subpath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
