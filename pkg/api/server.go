package api

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/silly-dl/silly/pkg/aria2"
	"github.com/silly-dl/silly/pkg/auth"
	"github.com/silly-dl/silly/pkg/bus"
	"github.com/silly-dl/silly/pkg/config"
	"github.com/silly-dl/silly/pkg/history"
)

// Daemon is the slice of the aria2 client the handlers call. Narrowed to an
// interface so handler tests can stub the daemon.
type Daemon interface {
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
	Multicall(ctx context.Context, calls []aria2.MulticallCall) ([]json.RawMessage, error)
}

// Server is the HTTP/WS front of the bridge.
type Server struct {
	cfg           config.Config
	daemon        Daemon
	store         *history.Store
	users         *auth.Service
	status        *bus.Watch[SysStatus]
	live          *bus.Bus[history.LiveMessage]
	notifications *bus.Bus[aria2.Envelope]

	echo       *echo.Echo
	httpServer *http.Server
	assets     fs.FS
}

// NewServer wires the server and registers all routes.
func NewServer(
	cfg config.Config,
	daemon Daemon,
	store *history.Store,
	users *auth.Service,
	status *bus.Watch[SysStatus],
	live *bus.Bus[history.LiveMessage],
	notifications *bus.Bus[aria2.Envelope],
) *Server {
	s := &Server{
		cfg:           cfg,
		daemon:        daemon,
		store:         store,
		users:         users,
		status:        status,
		live:          live,
		notifications: notifications,
		echo:          echo.New(),
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(requestLogger())

	// Account endpoints. Registration and login are the only writes
	// reachable without a session cookie.
	authGroup := e.Group("/api/auth")
	authGroup.POST("/reg/admin", s.registerAdminHandler)
	authGroup.POST("/login", s.loginHandler)
	authGroup.POST("/logout", s.logoutHandler)

	authed := e.Group("/api/auth", s.requireAuth)
	authed.GET("/me", s.meHandler)
	authed.GET("/user/dl/history", s.listHistoryHandler)
	authed.DELETE("/user/dl/history", s.deleteHistoryHandler)
	authed.POST("/user/dl/history/delete", s.deleteHistoryHandler)

	admin := e.Group("/api/auth/user", s.requireAuth, s.requireAdmin)
	admin.POST("/create", s.createUserHandler)
	admin.POST("/delete", s.deleteUserHandler)

	// Download commands.
	dl := e.Group("/api/aria2", s.requireAuth)
	dl.POST("/add", s.addURIsHandler)
	dl.POST("/add/torrent", s.addTorrentHandler)
	dl.POST("/add/torrents", s.addTorrentsHandler)
	dl.POST("/pause", s.pauseHandler)
	dl.POST("/resume", s.resumeHandler)
	dl.POST("/remove", s.removeHandler)
	dl.POST("/details", s.detailsHandler)
	dl.POST("/purge", s.purgeHandler)
	dl.POST("/move", s.moveHandler)
	dl.POST("/global", s.globalOptionsHandler)

	// Live streams. The status socket stays open so the setup screen can
	// learn adminExists before any account exists.
	e.GET("/api/ws/silly/status", s.wsStatusHandler)
	ws := e.Group("/api/ws", s.requireAuth)
	ws.GET("/event", s.wsEventHandler)
	ws.GET("/dl/history", s.wsHistoryHandler)

	// Everything else is the embedded UI.
	e.GET("/*", s.staticHandler)
}

// Start serves HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
