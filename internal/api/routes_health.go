package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/badvoidstar/astervoids/internal/app"
	"github.com/badvoidstar/astervoids/internal/lobby"
	"github.com/badvoidstar/astervoids/internal/realtime"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, rt *realtime.Server, sessions *lobby.Registry) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/healthz", disabledHealthHandler)
		return
	}

	started := time.Now()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"status":      "ok",
			"uptime":      time.Since(started).Round(time.Second).String(),
			"connections": rt.ConnectionCount(),
			"sessions":    sessions.Count(),
			"checked_at":  time.Now().UTC(),
		})
	})
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
