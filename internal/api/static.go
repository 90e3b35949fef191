package api

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/badvoidstar/astervoids/internal/middleware"
	"github.com/badvoidstar/astervoids/web"
)

// registerStaticRoutes serves the embedded game client. Unknown paths fall
// back to index.html so client-side routing works; API and socket paths
// keep JSON 404 semantics.
func registerStaticRoutes(r *gin.Engine) error {
	dist, err := web.FS()
	if err != nil {
		return err
	}

	fileServer := http.FileServer(http.FS(dist))

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") || path == "/ws" {
			middleware.NotFoundHandler(c)
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			middleware.NotFoundHandler(c)
			return
		}

		if _, statErr := fs.Stat(dist, strings.TrimPrefix(path, "/")); statErr != nil {
			c.Request.URL.Path = "/"
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	})
	return nil
}
