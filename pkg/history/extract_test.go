package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silly-dl/silly/pkg/aria2"
)

func statusJSON(t *testing.T, status aria2.Status) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(status)
	require.NoError(t, err)
	return raw
}

func strPtr(s string) *string { return &s }

func TestResolveNamePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		status aria2.Status
		want   string
	}{
		{
			name: "torrent metadata name wins over file path",
			status: aria2.Status{
				GID:        "g",
				Status:     "active",
				BitTorrent: &aria2.BitTorrent{Info: &aria2.BitTorrentInfo{Name: "Great Torrent"}},
				Files:      []aria2.File{{Path: "/dl/other-name.iso"}},
			},
			want: "Great Torrent",
		},
		{
			name: "first file basename",
			status: aria2.Status{
				GID:    "g",
				Status: "active",
				Files: []aria2.File{
					{Path: "/downloads/sub/My.File.iso", URIs: []aria2.URI{{URI: "http://host/ignored.bin"}}},
				},
			},
			want: "My.File.iso",
		},
		{
			name: "magnet dn parameter",
			status: aria2.Status{
				GID:    "g",
				Status: "active",
				Files: []aria2.File{
					{URIs: []aria2.URI{{URI: "magnet:?xt=urn:btih:abc&dn=Magnet+Name"}}},
				},
			},
			want: "Magnet Name",
		},
		{
			name: "decoded last url segment",
			status: aria2.Status{
				GID:    "g",
				Status: "active",
				Files: []aria2.File{
					{URIs: []aria2.URI{{URI: "http://host/path/Some%20File.bin"}}},
				},
			},
			want: "Some File.bin",
		},
		{
			name:   "placeholder when nothing resolves",
			status: aria2.Status{GID: "g", Status: "active"},
			want:   UntitledName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Extract(statusJSON(t, tt.status), "g")
			require.NotNil(t, meta.Name)
			assert.Equal(t, tt.want, *meta.Name)
		})
	}
}

func TestMapStatusRemovedDependsOnDisk(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "kept.bin")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))
	missing := filepath.Join(dir, "gone.bin")

	status := aria2.Status{
		GID:    "g",
		Status: "removed",
		Files: []aria2.File{
			{Path: existing},
			{Path: missing},
		},
	}
	meta := Extract(statusJSON(t, status), "g")
	assert.Equal(t, StatusStopped, meta.Status)

	status.Files = []aria2.File{
		{Path: filepath.Join(dir, "gone1.bin")},
		{Path: filepath.Join(dir, "gone2.bin")},
	}
	meta = Extract(statusJSON(t, status), "g")
	assert.Equal(t, StatusRemoved, meta.Status)
}

func TestMapStatusKnownStates(t *testing.T) {
	for daemon, want := range map[string]GidStatus{
		"active":   StatusActive,
		"waiting":  StatusWaiting,
		"paused":   StatusPaused,
		"error":    StatusError,
		"complete": StatusComplete,
		"bogus":    StatusStopped,
	} {
		meta := Extract(statusJSON(t, aria2.Status{GID: "g", Status: daemon}), "g")
		assert.Equal(t, want, meta.Status, "daemon status %q", daemon)
	}
}

func TestExtractFields(t *testing.T) {
	status := aria2.Status{
		GID:             "g1",
		Status:          "error",
		Dir:             "/downloads",
		TotalLength:     "1000",
		CompletedLength: "400",
		UploadLength:    "5",
		ErrorCode:       strPtr("24"),
		ErrorMessage:    strPtr("auth failed"),
		InfoHash:        strPtr("deadbeef"),
		BitTorrent:      &aria2.BitTorrent{Info: &aria2.BitTorrentInfo{Name: "T"}},
		Files: []aria2.File{
			{Path: "/downloads/a", URIs: []aria2.URI{{URI: "http://host/a"}}},
			{Path: "/downloads/b"},
		},
	}

	meta := Extract(statusJSON(t, status), "g1")

	assert.Equal(t, "g1", meta.GID)
	assert.Equal(t, StatusError, meta.Status)
	assert.Equal(t, "/downloads", *meta.Dir)
	assert.Equal(t, "1000", *meta.TotalLength)
	assert.Equal(t, "400", *meta.CompletedLength)
	assert.Equal(t, "5", *meta.UploadedLength)
	assert.Equal(t, int64(24), *meta.ErrorCode)
	assert.Equal(t, "auth failed", *meta.ErrorMsg)
	assert.Equal(t, "deadbeef", *meta.InfoHash)
	assert.True(t, *meta.IsTorrent)
	assert.Equal(t, "http://host/a", *meta.SourceURI)
	assert.JSONEq(t, `["/downloads/a","/downloads/b"]`, *meta.Files)
}

func TestExtractSkeletonOnGarbage(t *testing.T) {
	for _, raw := range []json.RawMessage{
		nil,
		json.RawMessage(`{"truncated`),
		json.RawMessage(`{}`), // no gid, no status
	} {
		meta := Extract(raw, "g9")
		assert.Equal(t, "g9", meta.GID)
		assert.Equal(t, UntitledName, *meta.Name)
		assert.Equal(t, StatusWaiting, meta.Status)
		assert.False(t, *meta.IsTorrent)
		assert.Equal(t, "0", *meta.TotalLength)
	}
}
