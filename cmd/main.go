package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/menumaster/orderstream/internal/config"
	"github.com/menumaster/orderstream/internal/handler"
	"github.com/menumaster/orderstream/internal/hub"
	"github.com/menumaster/orderstream/internal/registry"
	"github.com/menumaster/orderstream/internal/relay"
	"github.com/menumaster/orderstream/internal/room"
	pkglog "github.com/menumaster/orderstream/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		pkglog.L().Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "orderstream",
	})
	logger := pkglog.L()

	nodeID := uuid.New().String()
	logger.Info().Str(pkglog.FieldNodeID, nodeID).Msg("starting order distribution service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rooms := room.NewRegistry()
	wsHub := hub.NewHub(rooms, nodeID)

	// Optional Redis room mirror.
	if cfg.Redis.Enabled {
		presence, err := registry.NewRedisPresence(cfg.Redis, nodeID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer presence.Close()
		presence.StartHeartbeat(ctx)
		wsHub.SetPresence(presence)
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis room presence enabled")
	}

	// Optional cross-node event relay.
	if cfg.Relay.Enabled {
		rl, err := relay.NewAMQPRelay(cfg.Relay.URL, cfg.Relay.Exchange, nodeID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		defer rl.Close()
		if err := rl.Start(ctx, wsHub.Inject); err != nil {
			logger.Fatal().Err(err).Msg("failed to start relay consumer")
		}
		wsHub.SetForwarder(rl)
		logger.Info().Str("exchange", cfg.Relay.Exchange).Msg("cross-node relay enabled")
	}

	wsHub.StartStatsLogger(ctx, cfg.Stats.Interval)

	wsHandler := handler.NewWSHandler(wsHub, cfg.WebSocket)
	sseHandler := handler.NewSSEHandler(wsHub, cfg.SSE)
	eventsHandler := handler.NewEventsHandler(wsHub)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler.RegisterRoutes(r, wsHandler, sseHandler, eventsHandler)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams and websockets stay open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("stopped")
}
