// Package aria2 is the bridge to the aria2 daemon: a single multiplexed
// JSON-RPC connection over WebSocket with request/response correlation,
// token injection, and notification fan-out.
package aria2

import (
	"encoding/json"
)

const jsonrpcVersion = "2.0"

// Request is the outgoing JSON-RPC envelope. IDs are decimal strings.
type Request struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Envelope is any incoming frame: a response (ID set, Result or Error set)
// or a notification (no ID, Method set). Raw preserves the original frame
// bytes for subscribers that forward verbatim.
type Envelope struct {
	ID     *string         `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *DaemonError    `json:"error,omitempty"`

	Raw []byte `json:"-"`
}

// MulticallCall is one sub-call inside a system.multicall batch.
type MulticallCall struct {
	MethodName string `json:"methodName"`
	Params     []any  `json:"params"`
}

// GlobalStat is the aria2.getGlobalStat payload. aria2 emits every counter
// as a decimal string.
type GlobalStat struct {
	DownloadSpeed   string `json:"downloadSpeed"`
	UploadSpeed     string `json:"uploadSpeed"`
	NumActive       string `json:"numActive"`
	NumWaiting      string `json:"numWaiting"`
	NumStopped      string `json:"numStopped"`
	NumStoppedTotal string `json:"numStoppedTotal"`
}

// URI is one source of a file in a tellStatus response.
type URI struct {
	URI    string `json:"uri"`
	Status string `json:"status"`
}

// File is one entry of the files array in a tellStatus response.
type File struct {
	Index           string `json:"index"`
	Path            string `json:"path"`
	Length          string `json:"length"`
	CompletedLength string `json:"completedLength"`
	Selected        string `json:"selected"`
	URIs            []URI  `json:"uris"`
}

// BitTorrentInfo carries the torrent metadata name.
type BitTorrentInfo struct {
	Name string `json:"name,omitempty"`
}

// BitTorrent is present in tellStatus responses for torrent downloads.
type BitTorrent struct {
	AnnounceList [][]string      `json:"announceList,omitempty"`
	Comment      string          `json:"comment,omitempty"`
	CreationDate int64           `json:"creationDate,omitempty"`
	Mode         string          `json:"mode,omitempty"`
	Info         *BitTorrentInfo `json:"info,omitempty"`
}

// Status is the aria2.tellStatus payload for one download.
type Status struct {
	GID             string      `json:"gid"`
	Status          string      `json:"status"`
	Dir             string      `json:"dir"`
	DownloadSpeed   string      `json:"downloadSpeed"`
	UploadSpeed     string      `json:"uploadSpeed"`
	TotalLength     string      `json:"totalLength"`
	CompletedLength string      `json:"completedLength"`
	UploadLength    string      `json:"uploadLength"`
	ErrorCode       *string     `json:"errorCode,omitempty"`
	ErrorMessage    *string     `json:"errorMessage,omitempty"`
	InfoHash        *string     `json:"infoHash,omitempty"`
	BitTorrent      *BitTorrent `json:"bittorrent,omitempty"`
	Files           []File      `json:"files"`
	Connections     *string     `json:"connections,omitempty"`
	NumPieces       *string     `json:"numPieces,omitempty"`
	NumSeeders      *string     `json:"numSeeders,omitempty"`
	// aria2 renders this as the strings "true" / "false".
	Seeder *string `json:"seeder,omitempty"`
}
