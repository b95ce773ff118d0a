package api

import (
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/silly-dl/silly/pkg/auth"
)

// claimsKey is the context key the auth middleware stores session claims
// under.
const claimsKey = "auth.claims"

// requestLogger returns middleware that logs one line per request.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)
			status := 0
			if resp, respErr := echo.UnwrapResponse(c.Response()); respErr == nil {
				status = resp.Status
			}
			slog.Debug("HTTP request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration", time.Since(start),
			)
			return err
		}
	}
}

// requireAuth verifies the session cookie and stores the claims on the
// context. Missing or invalid cookies end the request with 401.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		cookie, err := c.Request().Cookie(auth.CookieName)
		if err != nil || cookie.Value == "" {
			return c.JSON(http.StatusUnauthorized, map[string]any{"error": "authentication required"})
		}

		claims, err := s.users.VerifyToken(cookie.Value)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]any{"error": "invalid or expired session"})
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

// requireAdmin gates a route to admin sessions. Must run after requireAuth.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		claims := sessionClaims(c)
		if claims == nil || claims.Role != string(auth.RoleAdmin) {
			return c.JSON(http.StatusForbidden, map[string]any{"error": "admin access required"})
		}
		return next(c)
	}
}

// sessionClaims returns the claims stored by requireAuth, or nil.
func sessionClaims(c *echo.Context) *auth.Claims {
	claims, _ := c.Get(claimsKey).(*auth.Claims)
	return claims
}
