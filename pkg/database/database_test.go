package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchemaAndIsReopenable(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "silly.db"))

	for _, table := range []string{"users", "download_history"} {
		var count int
		err := db.Get(&count,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	var journalMode string
	require.NoError(t, db.Get(&journalMode, `PRAGMA journal_mode`))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.Get(&foreignKeys, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, foreignKeys)

	require.NoError(t, db.Close())

	// A second open on the same directory finds migrations already applied.
	db, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCascadeDeleteRemovesHistory(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var userID int64
	require.NoError(t, db.QueryRow(`
		INSERT INTO users (username, password_hash) VALUES ('u', 'x') RETURNING id`).Scan(&userID))
	_, err = db.Exec(`
		INSERT INTO download_history (gid, user_id, status) VALUES ('g1', ?, 'active')`, userID)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM users WHERE id = ?`, userID)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM download_history`))
	assert.Equal(t, 0, count)
}
