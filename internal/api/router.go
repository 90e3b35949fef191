package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/badvoidstar/astervoids/internal/app"
	"github.com/badvoidstar/astervoids/internal/lobby"
	"github.com/badvoidstar/astervoids/internal/middleware"
	"github.com/badvoidstar/astervoids/internal/realtime"
	"github.com/badvoidstar/astervoids/pkg/response"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
// All game traffic flows over the /ws socket; the HTTP surface is limited
// to monitoring, a read-only session browser and the embedded client.
func NewRouter(rt *realtime.Server, sessions *lobby.Registry, cfg *app.Config) (*gin.Engine, error) {
	if rt == nil {
		return nil, fmt.Errorf("realtime server must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session registry must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/ws", func(c *gin.Context) {
		rt.Serve(c.Writer, c.Request)
	})

	registerHealthRoutes(r, cfg, rt, sessions)

	// Session browser for clients that have not opened a socket yet.
	api := r.Group("/api")
	api.GET("/sessions", listSessionsHandler(sessions))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	if err := registerStaticRoutes(r); err != nil {
		return nil, err
	}

	return r, nil
}

func listSessionsHandler(sessions *lobby.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, sessions.ListActiveSessions())
	}
}
