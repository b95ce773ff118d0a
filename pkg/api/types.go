// Package api is the HTTP and WebSocket surface: download commands, account
// management, history queries, and the three live streams.
package api

// SysStatus is the process health snapshot pushed to status sockets. It
// changes on daemon connect/disconnect and on first admin registration.
type SysStatus struct {
	Version     string `json:"version"`
	AdminExists bool   `json:"adminExists"`
	Aria2Alive  bool   `json:"aria2Alive"`
}
