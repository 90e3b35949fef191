package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/badvoidstar/astervoids/pkg/metrics"
)

// Metrics records request latency for each HTTP request. Websocket upgrades
// are excluded: their duration is the connection lifetime, not a request
// latency.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.IsWebsocket() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPLatency.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
