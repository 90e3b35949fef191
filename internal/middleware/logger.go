package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/badvoidstar/astervoids/pkg/logger"
)

// Paths polled by orchestrators and scrapers; logging every probe buries
// the lines that matter.
var quietPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// Logger writes a structured access log for each request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		if _, quiet := quietPaths[path]; quiet {
			return
		}

		logger.WithModule("http").Info("request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes", c.Writer.Size()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
