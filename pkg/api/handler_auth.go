package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/silly-dl/silly/pkg/auth"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type deleteUserRequest struct {
	ID int64 `json:"id"`
}

// sessionCookie builds the auth cookie; an empty token expires it.
func sessionCookie(token string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.TokenValidity / time.Second),
	}
	if token == "" {
		cookie.MaxAge = -1
	}
	return cookie
}

// registerAdminHandler handles POST /api/auth/reg/admin. One-shot initial
// setup: refused once any admin exists.
func (s *Server) registerAdminHandler(c *echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := s.users.RegisterAdmin(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	token, err := s.users.IssueToken(user)
	if err != nil {
		return respondError(c, err)
	}

	s.status.Update(func(v SysStatus) SysStatus {
		v.AdminExists = true
		return v
	})

	http.SetCookie(c.Response(), sessionCookie(token))
	return c.JSON(http.StatusOK, user)
}

// loginHandler handles POST /api/auth/login.
func (s *Server) loginHandler(c *echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, token, err := s.users.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	http.SetCookie(c.Response(), sessionCookie(token))
	return c.JSON(http.StatusOK, user)
}

// logoutHandler handles POST /api/auth/logout by expiring the cookie.
func (s *Server) logoutHandler(c *echo.Context) error {
	http.SetCookie(c.Response(), sessionCookie(""))
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// meHandler handles GET /api/auth/me.
func (s *Server) meHandler(c *echo.Context) error {
	claims := sessionClaims(c)
	user, err := s.users.GetUser(c.Request().Context(), claims.UID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// createUserHandler handles POST /api/auth/user/create (admin only).
func (s *Server) createUserHandler(c *echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Role == "" {
		req.Role = string(auth.RoleUser)
	}

	user, err := s.users.CreateUser(c.Request().Context(), req.Username, req.Password, auth.Role(req.Role))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// deleteUserHandler handles POST /api/auth/user/delete (admin only).
func (s *Server) deleteUserHandler(c *echo.Context) error {
	var req deleteUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ID == 0 {
		return badRequest(c, "id is required")
	}

	claims := sessionClaims(c)
	if err := s.users.DeleteUser(c.Request().Context(), claims.UID, req.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
