package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/silly-dl/silly/pkg/history"
)

const wsWriteTimeout = 10 * time.Second

// tickFrame and eventFrame are the two history-socket message shapes.
type tickFrame struct {
	Type string `json:"type"`
	history.TickPayload
}

type eventFrame struct {
	Type string                `json:"type"`
	Data *history.ItemMetaData `json:"data"`
}

// acceptWS upgrades the request and returns a connection plus a context
// that ends when the peer goes away.
func acceptWS(c *echo.Context) (*websocket.Conn, context.Context, context.CancelFunc, error) {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Cookies already gate the sensitive sockets; the UI is served
		// same-origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := context.WithCancel(c.Request().Context())

	// Clients never send data frames; the read loop only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	return conn, ctx, cancel, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeRaw(ctx, conn, data)
}

func writeRaw(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// wsEventHandler handles GET /api/ws/event: raw daemon notification frames,
// relayed byte for byte.
func (s *Server) wsEventHandler(c *echo.Context) error {
	conn, ctx, cancel, err := acceptWS(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.CloseNow()

	connID := uuid.New().String()
	slog.Debug("Event socket connected", "conn_id", connID)
	defer slog.Debug("Event socket closed", "conn_id", connID)

	events, unsubscribe := s.notifications.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeRaw(ctx, conn, env.Raw); err != nil {
				return nil
			}
		}
	}
}

// wsStatusHandler handles GET /api/ws/silly/status: the current SysStatus
// on connect, then every change.
func (s *Server) wsStatusHandler(c *echo.Context) error {
	conn, ctx, cancel, err := acceptWS(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.CloseNow()

	changes, unsubscribe := s.status.Subscribe()
	defer unsubscribe()

	if err := writeJSON(ctx, conn, s.status.Get()); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case status, ok := <-changes:
			if !ok {
				return nil
			}
			if err := writeJSON(ctx, conn, status); err != nil {
				return nil
			}
		}
	}
}

// wsHistoryHandler handles GET /api/ws/dl/history: the authenticated user's
// Tick and Event messages only.
func (s *Server) wsHistoryHandler(c *echo.Context) error {
	claims := sessionClaims(c)

	conn, ctx, cancel, err := acceptWS(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.CloseNow()

	connID := uuid.New().String()
	slog.Debug("History socket connected", "conn_id", connID, "user_id", claims.UID)
	defer slog.Debug("History socket closed", "conn_id", connID)

	messages, unsubscribe := s.live.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.UserID != claims.UID {
				continue
			}

			var frame any
			switch {
			case msg.Tick != nil:
				frame = tickFrame{Type: "tick", TickPayload: *msg.Tick}
			case msg.Event != nil:
				frame = eventFrame{Type: "event", Data: msg.Event}
			default:
				continue
			}
			if err := writeJSON(ctx, conn, frame); err != nil {
				return nil
			}
		}
	}
}
