// Package web embeds the prediction console page.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var staticFS embed.FS

// Assets returns the embedded page assets with static/ as the root,
// so files are accessed directly (e.g., "index.html").
func Assets() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
