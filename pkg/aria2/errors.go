package aria2

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrWorkerUnavailable is returned when a call is made after the
	// bridge worker has shut down.
	ErrWorkerUnavailable = errors.New("aria2 worker unavailable")

	// ErrReplyDropped is returned when the connection is lost before a
	// response arrives, or when a call is issued while disconnected.
	ErrReplyDropped = errors.New("reply channel closed")
)

// DaemonError is a JSON-RPC error object returned by aria2.
type DaemonError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error renders the daemon error object as its JSON text, matching how
// handlers relay it to clients.
func (e *DaemonError) Error() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":%d,"message":%q}`, e.Code, e.Message)
	}
	return string(b)
}
