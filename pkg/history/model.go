// Package history owns per-user download history: the persistent rows, the
// extraction of daemon status payloads into rows, and the projector that
// keeps rows reconciled with daemon truth while streaming live updates.
package history

import (
	"time"

	"github.com/silly-dl/silly/pkg/aria2"
)

// GidStatus is the lifecycle state of a download row.
type GidStatus string

const (
	// StatusError: onDownloadError, or gid lost from the daemon session.
	StatusError GidStatus = "error"
	// StatusPaused: onDownloadPause.
	StatusPaused GidStatus = "paused"
	// StatusActive: onDownloadStart, aria2.tellActive.
	StatusActive GidStatus = "active"
	// StatusWaiting: queued in aria2.
	StatusWaiting GidStatus = "waiting"
	// StatusRemoved: stopped and the file is gone from disk.
	StatusRemoved GidStatus = "removed"
	// StatusStopped: stopped but the allocation still exists on disk.
	StatusStopped GidStatus = "stopped"
	// StatusComplete: onDownloadComplete or onBtDownloadComplete.
	StatusComplete GidStatus = "complete"
)

// UntitledName is the placeholder written when no better name has ever been
// resolved. The upsert keeps an existing real name over an incoming
// placeholder.
const UntitledName = "<Untitled>"

// ItemMetaData is one download history row, keyed by gid.
type ItemMetaData struct {
	GID string `db:"gid" json:"gid"`
	// Torrent or direct-download display name.
	Name   *string   `db:"name" json:"name"`
	Status GidStatus `db:"status" json:"status"`
	// Directory the download is written into.
	Dir *string `db:"dir" json:"dir"`
	// JSON-encoded array of file paths; multiple entries for torrents.
	Files           *string `db:"files" json:"files"`
	TotalLength     *string `db:"total_length" json:"totalLength"`
	CompletedLength *string `db:"completed_length" json:"completedLength"`
	UploadedLength  *string `db:"uploaded_length" json:"uploadedLength"`
	// Source link, set only for URI-based downloads.
	SourceURI   *string    `db:"source_uri" json:"sourceUri"`
	InfoHash    *string    `db:"info_hash" json:"infoHash"`
	ErrorCode   *int64     `db:"error_code" json:"errorCode"`
	ErrorMsg    *string    `db:"error_message" json:"errorMessage"`
	IsTorrent   *bool      `db:"is_torrent" json:"isTorrent"`
	CreatedAt   *time.Time `db:"created_at" json:"createdAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt"`
	// Owner; server-side only, never serialized to clients.
	UserID int64 `db:"user_id" json:"-"`
}

// TickPayload is the periodic live-stream update for one user.
type TickPayload struct {
	Global aria2.GlobalStat `json:"global"`
	Tasks  []aria2.Status   `json:"tasks"`
}

// LiveMessage is the per-user live-stream message: exactly one of Tick or
// Event is set. UserID routes the message and is not serialized.
type LiveMessage struct {
	UserID int64
	Tick   *TickPayload
	Event  *ItemMetaData
}
