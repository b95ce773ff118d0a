// Package web embeds the compiled UI bundle.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var dist embed.FS

// Assets returns the UI bundle rooted at dist/.
func Assets() (fs.FS, error) {
	return fs.Sub(dist, "dist")
}
