package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when an operation targets a gid that has no row.
var ErrNotFound = errors.New("download history row not found")

// Store is the typed interface to the download_history table. The projector
// is its only status-changing writer; HTTP delete handlers only delete.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store on the shared pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// InsertInitial registers a download for a user. Idempotent by gid: a
// second insert for the same gid is a no-op and keeps the original
// created_at and owner. completed_at always starts null.
func (s *Store) InsertInitial(ctx context.Context, userID int64, meta *ItemMetaData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_history (
			gid, user_id, name, status, dir, files,
			total_length, completed_length, uploaded_length,
			source_uri, info_hash, is_torrent, error_code, error_message,
			created_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(gid) DO NOTHING`,
		meta.GID, userID, meta.Name, meta.Status, meta.Dir, meta.Files,
		meta.TotalLength, meta.CompletedLength, meta.UploadedLength,
		meta.SourceURI, meta.InfoHash, meta.IsTorrent, meta.ErrorCode, meta.ErrorMsg,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// UpdateProgress writes the fast-changing columns of one row. It never
// touches status, so it may interleave freely with UpsertFromDaemon; the
// last writer wins on the overlapping length/files columns.
func (s *Store) UpdateProgress(ctx context.Context, gid string, filesJSON *string, completed, total, uploaded string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE download_history
		SET files = ?, completed_length = ?, total_length = ?, uploaded_length = ?
		WHERE gid = ?`,
		filesJSON, completed, total, uploaded, gid,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress for gid %s: %w", gid, err)
	}
	return nil
}

// UpsertFromDaemon is the status-changing write. The incoming placeholder
// name never overwrites a real one; completed_at is latched on the first
// transition to complete and cleared on any other status. On success the
// row's user_id, created_at and completed_at are filled into meta.
// Returns ErrNotFound for an unknown gid.
func (s *Store) UpsertFromDaemon(ctx context.Context, meta *ItemMetaData) error {
	now := time.Now().UTC()
	row := s.db.QueryRowxContext(ctx, `
		UPDATE download_history
		SET
			name = CASE WHEN ?1 = '<Untitled>' THEN name ELSE COALESCE(?1, name) END,
			status = ?2, dir = ?3, files = ?4,
			total_length = ?5, completed_length = ?6, uploaded_length = ?7,
			info_hash = ?8, is_torrent = ?9, error_code = ?10, error_message = ?11,
			completed_at = CASE WHEN ?2 = 'complete' THEN COALESCE(completed_at, ?12) ELSE NULL END,
			updated_at = ?12
		WHERE gid = ?13
		RETURNING user_id, created_at, completed_at`,
		meta.Name, meta.Status, meta.Dir, meta.Files,
		meta.TotalLength, meta.CompletedLength, meta.UploadedLength,
		meta.InfoHash, meta.IsTorrent, meta.ErrorCode, meta.ErrorMsg,
		now, meta.GID,
	)

	var (
		userID      int64
		createdAt   *time.Time
		completedAt *time.Time
	)
	if err := row.Scan(&userID, &createdAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to upsert history row for gid %s: %w", meta.GID, err)
	}

	meta.UserID = userID
	meta.CreatedAt = createdAt
	meta.CompletedAt = completedAt
	return nil
}

// MarkSessionLost flags a gid the daemon no longer knows about so it is not
// reconciled again.
func (s *Store) MarkSessionLost(ctx context.Context, gid string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE download_history
		SET status = 'error', error_code = 1, error_message = 'Session lost'
		WHERE gid = ?`,
		gid,
	)
	if err != nil {
		return fmt.Errorf("failed to mark gid %s as session lost: %w", gid, err)
	}
	return nil
}

// OwnedGid pairs a gid with its owner for reconciliation batches.
type OwnedGid struct {
	GID    string `db:"gid"`
	UserID int64  `db:"user_id"`
}

// ActiveGids returns the gids currently marked active, with owners.
func (s *Store) ActiveGids(ctx context.Context) ([]OwnedGid, error) {
	var rows []OwnedGid
	err := s.db.SelectContext(ctx, &rows,
		`SELECT gid, user_id FROM download_history WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("failed to select active gids: %w", err)
	}
	return rows, nil
}

// ReconcilableGids returns every gid whose status can still change, i.e.
// anything except rows already marked removed.
func (s *Store) ReconcilableGids(ctx context.Context) ([]string, error) {
	var gids []string
	err := s.db.SelectContext(ctx, &gids, `
		SELECT gid FROM download_history
		WHERE status IN ('active', 'waiting', 'paused', 'stopped', 'complete', 'error')`)
	if err != nil {
		return nil, fmt.Errorf("failed to select reconcilable gids: %w", err)
	}
	return gids, nil
}

// ListForUser returns one page of a user's history, newest first, plus the
// total row count for pagination metadata.
func (s *Store) ListForUser(ctx context.Context, userID int64, page, limit int) ([]ItemMetaData, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int64
	if err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM download_history WHERE user_id = ?`, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count history rows: %w", err)
	}

	var rows []ItemMetaData
	err := s.db.SelectContext(ctx, &rows, `
		SELECT gid, user_id, name, status, dir, files,
		       total_length, completed_length, uploaded_length,
		       source_uri, info_hash, error_code, error_message, is_torrent,
		       created_at, completed_at
		FROM download_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list history rows: %w", err)
	}
	return rows, total, nil
}

// FileLocation returns the dir and name of a row iff it belongs to the
// user. found is false when there is no such owned row.
func (s *Store) FileLocation(ctx context.Context, userID int64, gid string) (dir, name string, found bool, err error) {
	row := s.db.QueryRowxContext(ctx,
		`SELECT COALESCE(dir, ''), COALESCE(name, '') FROM download_history WHERE gid = ? AND user_id = ?`,
		gid, userID)
	if err := row.Scan(&dir, &name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("failed to read file location for gid %s: %w", gid, err)
	}
	return dir, name, true, nil
}

// DeleteForUser deletes a row iff the owner matches. Returns the number of
// rows removed (0 or 1); deleting someone else's gid is a silent no-op.
func (s *Store) DeleteForUser(ctx context.Context, userID int64, gid string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM download_history WHERE gid = ? AND user_id = ?`, gid, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history row for gid %s: %w", gid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
