package api

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// SetAssets installs the embedded UI bundle served by the fallback route.
func (s *Server) SetAssets(assets fs.FS) {
	s.assets = assets
}

// staticHandler serves the UI bundle. Unknown paths fall back to index.html
// so client-side routing works on deep links.
func (s *Server) staticHandler(c *echo.Context) error {
	if s.assets == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no ui bundled")
	}

	name := strings.TrimPrefix(path.Clean(c.Request().URL.Path), "/")
	if name == "" || name == "." {
		name = "index.html"
	}

	data, err := fs.ReadFile(s.assets, name)
	if err != nil {
		name = "index.html"
		data, err = fs.ReadFile(s.assets, name)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Blob(http.StatusOK, contentType, data)
}
