package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/silly-dl/silly/pkg/aria2"
	"github.com/silly-dl/silly/pkg/auth"
	"github.com/silly-dl/silly/pkg/history"
)

// respondError maps a service-layer error to its HTTP status and writes the
// `{"error": …}` body clients expect. Daemon-side failures are the
// gateway's fault (502); everything unrecognized is a 500.
func respondError(c *echo.Context, err error) error {
	var daemonErr *aria2.DaemonError
	if errors.As(err, &daemonErr) {
		return c.JSON(http.StatusBadGateway, map[string]any{"error": daemonErr.Error()})
	}
	if errors.Is(err, aria2.ErrReplyDropped) || errors.Is(err, aria2.ErrWorkerUnavailable) {
		return c.JSON(http.StatusBadGateway, map[string]any{"error": err.Error()})
	}

	var validErr *auth.ValidationError
	if errors.As(err, &validErr) {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": validErr.Error()})
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, map[string]any{"error": err.Error()})
	case errors.Is(err, auth.ErrAdminExists), errors.Is(err, auth.ErrSelfDelete), errors.Is(err, auth.ErrLastAdmin):
		return c.JSON(http.StatusForbidden, map[string]any{"error": err.Error()})
	case errors.Is(err, auth.ErrUsernameTaken):
		return c.JSON(http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, history.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]any{"error": err.Error()})
	}

	slog.Error("Unexpected handler error", "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal server error"})
}

// badRequest writes a 400 with the `{"error": …}` body.
func badRequest(c *echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"error": msg})
}
