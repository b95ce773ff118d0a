package history

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/silly-dl/silly/pkg/aria2"
)

// Extract converts a raw tellStatus payload into a history row for the
// given gid. UserID is left zero; the store fills it at upsert time. A
// payload that cannot be decoded yields a skeleton row so the pipeline
// keeps moving.
func Extract(raw json.RawMessage, gid string) ItemMetaData {
	var info aria2.Status
	if err := json.Unmarshal(raw, &info); err != nil || info.GID == "" || info.Status == "" {
		slog.Error("Failed to parse aria2 status, using skeleton", "gid", gid, "error", err)
		return skeleton(gid)
	}

	name := resolveName(&info)
	paths := FilePaths(&info)

	var filesJSON *string
	if b, err := json.Marshal(paths); err == nil {
		s := string(b)
		filesJSON = &s
	}

	status := mapStatus(info.Status, paths)
	isTorrent := info.BitTorrent != nil

	var sourceURI *string
	if len(info.Files) > 0 {
		for _, u := range info.Files[0].URIs {
			if u.URI != "" {
				uri := u.URI
				sourceURI = &uri
				break
			}
		}
	}

	var errorCode *int64
	if info.ErrorCode != nil {
		if n, err := strconv.ParseInt(*info.ErrorCode, 10, 64); err == nil {
			errorCode = &n
		}
	}

	return ItemMetaData{
		GID:             gid,
		Name:            &name,
		Status:          status,
		Dir:             &info.Dir,
		Files:           filesJSON,
		TotalLength:     &info.TotalLength,
		CompletedLength: &info.CompletedLength,
		UploadedLength:  &info.UploadLength,
		SourceURI:       sourceURI,
		InfoHash:        info.InfoHash,
		ErrorCode:       errorCode,
		ErrorMsg:        info.ErrorMessage,
		IsTorrent:       &isTorrent,
	}
}

// FilePaths returns the non-empty file paths of a daemon status.
func FilePaths(info *aria2.Status) []string {
	paths := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		if f.Path != "" {
			paths = append(paths, f.Path)
		}
	}
	return paths
}

// mapStatus maps the daemon status string. "removed" depends on whether any
// file still exists on disk: present means the user stopped the download
// (allocation kept), absent means it is truly gone.
func mapStatus(daemonStatus string, paths []string) GidStatus {
	switch daemonStatus {
	case "active":
		return StatusActive
	case "waiting":
		return StatusWaiting
	case "paused":
		return StatusPaused
	case "error":
		return StatusError
	case "complete":
		return StatusComplete
	case "removed":
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return StatusStopped
			}
		}
		return StatusRemoved
	default:
		return StatusStopped
	}
}

// resolveName picks a display name, first match wins:
// torrent metadata name, first file basename, magnet dn parameter, decoded
// last URL path segment, "<Untitled>".
func resolveName(info *aria2.Status) string {
	if bt := info.BitTorrent; bt != nil && bt.Info != nil && bt.Info.Name != "" {
		return bt.Info.Name
	}

	if len(info.Files) > 0 && info.Files[0].Path != "" {
		if base := filepath.Base(info.Files[0].Path); base != "." && base != string(filepath.Separator) {
			return base
		}
	}

	for _, f := range info.Files {
		for _, source := range f.URIs {
			u, err := url.Parse(source.URI)
			if err != nil {
				continue
			}
			if u.Scheme == "magnet" {
				if dn := u.Query().Get("dn"); strings.TrimSpace(dn) != "" {
					return dn
				}
				continue
			}
			// http/ftp: last path segment, already URL-decoded by Parse.
			segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
			if last := segments[len(segments)-1]; strings.TrimSpace(last) != "" {
				return last
			}
		}
	}

	slog.Debug("Failed to resolve a download name, using placeholder")
	return UntitledName
}

// skeleton is the minimal row written when the daemon payload is unusable.
func skeleton(gid string) ItemMetaData {
	name := UntitledName
	isTorrent := false
	zero := "0"
	zeroC, zeroU := zero, zero
	return ItemMetaData{
		GID:             gid,
		Name:            &name,
		Status:          StatusWaiting,
		IsTorrent:       &isTorrent,
		TotalLength:     &zero,
		CompletedLength: &zeroC,
		UploadedLength:  &zeroU,
	}
}
