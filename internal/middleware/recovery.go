package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/badvoidstar/astervoids/pkg/logger"
	"github.com/badvoidstar/astervoids/pkg/response"
)

// Recovery converts panics into a 500 response and logs the error. Clients
// never see panic details.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithModule("http").Error("panic",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", r),
				)
				response.Error(c, http.StatusInternalServerError,
					"INTERNAL_SERVER_ERROR", "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// NotFoundHandler returns a JSON 404 for unknown API routes. Non-API paths
// are handled by the static client fallback instead.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, http.StatusNotFound,
		"NOT_FOUND", fmt.Sprintf("route %s not found", c.Request.URL.Path))
}
