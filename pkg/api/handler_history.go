package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/silly-dl/silly/pkg/history"
)

type deleteHistoryRequest struct {
	GIDs       []string `json:"gids"`
	DeleteFile bool     `json:"delete_file"`
}

// listHistoryHandler handles GET /api/auth/user/dl/history.
func (s *Server) listHistoryHandler(c *echo.Context) error {
	page := 1
	limit := 20
	if v := c.QueryParam("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return badRequest(c, "page must be a positive integer")
		}
		page = n
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return badRequest(c, "limit must be between 1 and 100")
		}
		limit = n
	}

	claims := sessionClaims(c)
	rows, total, err := s.store.ListForUser(c.Request().Context(), claims.UID, page, limit)
	if err != nil {
		return respondError(c, err)
	}

	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}

	if rows == nil {
		rows = []history.ItemMetaData{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": rows,
		"meta": map[string]any{
			"currentPage": page,
			"perPage":     limit,
			"totalItems":  total,
			"totalPages":  totalPages,
		},
	})
}

// deleteHistoryHandler handles DELETE /api/auth/user/dl/history. Rows not
// owned by the caller are skipped silently. With delete_file set the
// download payload is removed from disk first; the daemon's own result
// entry is purged best-effort either way.
func (s *Server) deleteHistoryHandler(c *echo.Context) error {
	var req deleteHistoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.GIDs) == 0 {
		return badRequest(c, "gids is required")
	}

	claims := sessionClaims(c)
	ctx := c.Request().Context()

	for _, gid := range req.GIDs {
		if gid == "" {
			continue
		}

		if req.DeleteFile {
			s.deleteDownloadFiles(c, gid)
		}

		// The daemon keeps stopped results around; drop ours so a later
		// purge or sync does not resurrect the row. Unknown gids are fine.
		if _, err := s.daemon.Call(ctx, "removeDownloadResult", []any{gid}); err != nil {
			slog.Debug("removeDownloadResult failed", "gid", gid, "error", err)
		}

		if _, err := s.store.DeleteForUser(ctx, claims.UID, gid); err != nil {
			return respondError(c, err)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// deleteDownloadFiles removes the payload of one owned download from disk.
// aria2 control files next to it are removed as well.
func (s *Server) deleteDownloadFiles(c *echo.Context, gid string) {
	claims := sessionClaims(c)
	dir, name, found, err := s.store.FileLocation(c.Request().Context(), claims.UID, gid)
	if err != nil {
		slog.Error("Failed to resolve download location", "gid", gid, "error", err)
		return
	}
	if !found || dir == "" || name == "" {
		return
	}

	path := filepath.Join(dir, name)
	if err := os.RemoveAll(path); err != nil {
		slog.Warn("Failed to delete download payload", "path", path, "error", err)
	}
	if err := os.Remove(path + ".aria2"); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to delete control file", "path", path+".aria2", "error", err)
	}
}
