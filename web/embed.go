package web

import (
	"embed"
	"io/fs"
)

// staticFS embeds the game client build output (web/dist) into the binary so
// the server ships as a single artifact.
//
//go:embed all:dist
var staticFS embed.FS

// FS returns the embedded filesystem containing the client static files,
// rooted at the build output directory.
func FS() (fs.FS, error) {
	return fs.Sub(staticFS, "dist")
}
