package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/silly-dl/silly/pkg/aria2"
	"github.com/silly-dl/silly/pkg/history"
)

type addURIsRequest struct {
	URIs    []string       `json:"uris"`
	Options map[string]any `json:"options"`
}

type addTorrentsRequest struct {
	Torrents []struct {
		Torrent string         `json:"torrent"`
		Options map[string]any `json:"options"`
	} `json:"torrents"`
}

type gidRequest struct {
	GID string `json:"gid"`
}

type moveRequest struct {
	GID string `json:"gid"`
	Pos int    `json:"pos"`
	How string `json:"how"`
}

type globalOptionsRequest struct {
	Options map[string]any `json:"options"`
}

// addURIsHandler handles POST /api/aria2/add. Each uri becomes one addUri
// sub-call; gids that come back are registered as history rows owned by the
// caller. The raw per-uri results (gid or error object) are relayed as-is.
func (s *Server) addURIsHandler(c *echo.Context) error {
	var req addURIsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.URIs) == 0 {
		return badRequest(c, "uris is required")
	}
	for _, uri := range req.URIs {
		if strings.TrimSpace(uri) == "" {
			return badRequest(c, "uris must not contain blank entries")
		}
	}

	calls := make([]aria2.MulticallCall, len(req.URIs))
	for i, uri := range req.URIs {
		params := []any{[]string{uri}}
		if req.Options != nil {
			params = append(params, req.Options)
		}
		calls[i] = aria2.MulticallCall{MethodName: "aria2.addUri", Params: params}
	}

	results, err := s.daemon.Multicall(c.Request().Context(), calls)
	if err != nil {
		return respondError(c, err)
	}

	claims := sessionClaims(c)
	for i, result := range results {
		if gid := multicallGid(result); gid != "" {
			uri := req.URIs[i]
			s.registerDownload(c.Request().Context(), claims.UID, gid, &uri)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

// addTorrentsHandler handles POST /api/aria2/add/torrents. Torrent bodies
// arrive base64-encoded and are passed to the daemon verbatim.
func (s *Server) addTorrentsHandler(c *echo.Context) error {
	var req addTorrentsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.Torrents) == 0 {
		return badRequest(c, "torrents is required")
	}

	calls := make([]aria2.MulticallCall, len(req.Torrents))
	for i, t := range req.Torrents {
		if t.Torrent == "" {
			return badRequest(c, "torrent data must not be empty")
		}
		params := []any{t.Torrent, []string{}}
		if t.Options != nil {
			params = append(params, t.Options)
		}
		calls[i] = aria2.MulticallCall{MethodName: "aria2.addTorrent", Params: params}
	}

	results, err := s.daemon.Multicall(c.Request().Context(), calls)
	if err != nil {
		return respondError(c, err)
	}

	claims := sessionClaims(c)
	for _, result := range results {
		if gid := multicallGid(result); gid != "" {
			s.registerDownload(c.Request().Context(), claims.UID, gid, nil)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

// addTorrentHandler handles POST /api/aria2/add/torrent, the single-torrent
// form. Prefer /add/torrents; this stays for older clients.
func (s *Server) addTorrentHandler(c *echo.Context) error {
	var req struct {
		Torrent string         `json:"torrent"`
		Options map[string]any `json:"options"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Torrent == "" {
		return badRequest(c, "torrent data must not be empty")
	}

	// Middle element is web seed URIs, always empty here.
	params := []any{req.Torrent, []string{}}
	if req.Options != nil {
		params = append(params, req.Options)
	}

	result, err := s.daemon.Call(c.Request().Context(), "addTorrent", params)
	if err != nil {
		return respondError(c, err)
	}

	var gid string
	if err := json.Unmarshal(result, &gid); err != nil {
		return respondError(c, err)
	}
	s.registerDownload(c.Request().Context(), sessionClaims(c).UID, gid, nil)

	return c.JSON(http.StatusOK, map[string]any{"gid": gid})
}

// multicallGid reads the gid out of one add sub-call result; empty when the
// element is an error object.
func multicallGid(result json.RawMessage) string {
	var arr []string
	if err := json.Unmarshal(result, &arr); err != nil || len(arr) == 0 {
		return ""
	}
	return arr[0]
}

// registerDownload creates the initial history row for a freshly added gid.
// The daemon is asked for details first so the row starts with a real name;
// when that fails the row starts as a skeleton and the projector fills it
// on the first event.
func (s *Server) registerDownload(ctx context.Context, userID int64, gid string, sourceURI *string) {
	var meta history.ItemMetaData
	if raw, err := s.daemon.Call(ctx, "tellStatus", []any{gid}); err == nil {
		meta = history.Extract(raw, gid)
	} else {
		slog.Debug("tellStatus failed for new download", "gid", gid, "error", err)
		meta = history.Extract(nil, gid)
	}
	if sourceURI != nil {
		meta.SourceURI = sourceURI
	}

	if err := s.store.InsertInitial(ctx, userID, &meta); err != nil {
		slog.Error("Failed to record new download", "gid", gid, "error", err)
	}
}

// pauseHandler handles POST /api/aria2/pause.
func (s *Server) pauseHandler(c *echo.Context) error {
	return s.gidCommand(c, "pause", map[string]any{"status": "paused"})
}

// resumeHandler handles POST /api/aria2/resume.
func (s *Server) resumeHandler(c *echo.Context) error {
	return s.gidCommand(c, "unpause", map[string]any{"status": "resumed"})
}

// removeHandler handles POST /api/aria2/remove. forceRemove, not remove:
// graceful removal can hang on tracker and DHT shutdown.
func (s *Server) removeHandler(c *echo.Context) error {
	return s.gidCommand(c, "forceRemove", map[string]any{"status": "removed"})
}

// gidCommand runs one single-gid daemon method and answers with a fixed
// status body.
func (s *Server) gidCommand(c *echo.Context, method string, response map[string]any) error {
	var req gidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.GID == "" {
		return badRequest(c, "gid is required")
	}

	if _, err := s.daemon.Call(c.Request().Context(), method, []any{req.GID}); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

// detailsHandler handles POST /api/aria2/details: files, peers and servers
// for one gid, fetched in a single multicall and relayed as the raw
// three-element result array.
func (s *Server) detailsHandler(c *echo.Context) error {
	var req gidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.GID == "" {
		return badRequest(c, "gid is required")
	}

	results, err := s.daemon.Multicall(c.Request().Context(), []aria2.MulticallCall{
		{MethodName: "aria2.getFiles", Params: []any{req.GID}},
		{MethodName: "aria2.getPeers", Params: []any{req.GID}},
		{MethodName: "aria2.getServers", Params: []any{req.GID}},
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// purgeHandler handles POST /api/aria2/purge.
func (s *Server) purgeHandler(c *echo.Context) error {
	if _, err := s.daemon.Call(c.Request().Context(), "purgeDownloadResult", []any{}); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "purged"})
}

// moveHandler handles POST /api/aria2/move.
func (s *Server) moveHandler(c *echo.Context) error {
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.GID == "" {
		return badRequest(c, "gid is required")
	}
	switch req.How {
	case "POS_SET", "POS_CUR", "POS_END":
	default:
		return badRequest(c, "how must be POS_SET, POS_CUR or POS_END")
	}

	result, err := s.daemon.Call(c.Request().Context(), "changePosition", []any{req.GID, req.Pos, req.How})
	if err != nil {
		return respondError(c, err)
	}

	var newPos int
	if err := json.Unmarshal(result, &newPos); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"newPosition": newPos})
}

// globalOptionsHandler handles POST /api/aria2/global.
func (s *Server) globalOptionsHandler(c *echo.Context) error {
	var req globalOptionsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.Options) == 0 {
		return badRequest(c, "options is required")
	}

	if _, err := s.daemon.Call(c.Request().Context(), "changeGlobalOption", []any{req.Options}); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}
