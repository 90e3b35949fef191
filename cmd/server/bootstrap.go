package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/badvoidstar/astervoids/internal/api"
	"github.com/badvoidstar/astervoids/internal/app"
	"github.com/badvoidstar/astervoids/internal/dispatch"
	"github.com/badvoidstar/astervoids/internal/lobby"
	"github.com/badvoidstar/astervoids/internal/objects"
	"github.com/badvoidstar/astervoids/internal/realtime"
)

// runtimeStack bundles the long-lived components behind the HTTP server.
type runtimeStack struct {
	Sessions   *lobby.Registry
	Objects    *objects.Registry
	Realtime   *realtime.Server
	Dispatcher *dispatch.Dispatcher
	Router     *gin.Engine
}

// bootstrapRuntime builds the registries, the realtime server, the
// dispatcher wiring between them, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	sessions := lobby.NewRegistry(lobby.Options{
		MaxSessions:               cfg.Lobby.MaxSessions,
		MaxMembersPerSession:      cfg.Lobby.MaxMembersPerSession,
		DistributeOrphanedObjects: cfg.Lobby.DistributeOrphanedObjects,
	})
	store := objects.NewRegistry(sessions, objects.Options{
		DistributeOrphanedObjects: cfg.Lobby.DistributeOrphanedObjects,
	})

	rt := realtime.NewServer(realtime.Options{
		SendBufferSize:  cfg.Realtime.SendBufferSize,
		InboundRate:     cfg.Realtime.InboundRate,
		InboundBurst:    cfg.Realtime.InboundBurst,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		AllowedOrigins:  cfg.Realtime.AllowedOrigins,
	})

	dispatcher := dispatch.New(rt, sessions, store)
	dispatcher.Register()

	router, err := api.NewRouter(rt, sessions, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	log.Info("lobby configured",
		zap.Int("maxSessions", cfg.Lobby.MaxSessions),
		zap.Int("maxMembersPerSession", cfg.Lobby.MaxMembersPerSession),
		zap.Bool("distributeOrphanedObjects", cfg.Lobby.DistributeOrphanedObjects))

	return &runtimeStack{
		Sessions:   sessions,
		Objects:    store,
		Realtime:   rt,
		Dispatcher: dispatcher,
		Router:     router,
	}, nil
}

// Shutdown closes every live websocket so their leave flows run before the
// process exits.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil || s.Realtime == nil {
		return
	}

	open := s.Realtime.ConnectionCount()
	if open > 0 {
		log.Info("closing live connections", zap.Int("count", open))
	}
	s.Realtime.Shutdown()
}
