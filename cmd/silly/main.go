// silly server: multi-user web front for an aria2 daemon. It manages the
// daemon connection, download history, accounts, and serves the web UI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/silly-dl/silly/pkg/api"
	"github.com/silly-dl/silly/pkg/aria2"
	"github.com/silly-dl/silly/pkg/auth"
	"github.com/silly-dl/silly/pkg/bus"
	"github.com/silly-dl/silly/pkg/config"
	"github.com/silly-dl/silly/pkg/database"
	"github.com/silly-dl/silly/pkg/history"
	"github.com/silly-dl/silly/pkg/version"
	"github.com/silly-dl/silly/web"
)

const liveStreamBuffer = 100

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logFile, err := setupLogging(cfg)
	if err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	slog.Info("Starting silly", "version", version.Full(), "addr", cfg.Addr(), "aria2", cfg.Aria2URL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()

	users := auth.NewService(auth.NewStore(db), cfg.JWTSecret)
	adminExists, err := users.AdminExists(ctx)
	if err != nil {
		slog.Error("Failed to probe admin account", "error", err)
		os.Exit(1)
	}
	if !adminExists {
		slog.Info("No admin account yet, registration is open")
	}

	status := bus.NewWatch(api.SysStatus{
		Version:     version.Version,
		AdminExists: adminExists,
	})

	client := aria2.New(aria2.Config{
		URL:    cfg.Aria2URL(),
		Secret: cfg.Aria2Secret,
		OnConnState: func(alive bool) {
			status.Update(func(v api.SysStatus) api.SysStatus {
				v.Aria2Alive = alive
				return v
			})
		},
	})
	go client.Run(ctx)

	store := history.NewStore(db)
	live := bus.NewBus[history.LiveMessage](liveStreamBuffer)
	projector := history.NewProjector(client, store, client.Notifications(), live)
	go projector.Run(ctx)

	server := api.NewServer(cfg, client, store, users, status, live, client.Notifications())
	if assets, err := web.Assets(); err == nil {
		server.SetAssets(assets)
	} else {
		slog.Warn("Web UI assets unavailable", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go probeDaemonVersion(ctx, client)

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	slog.Info("Stopped")
}

// setupLogging writes text logs to stdout and <data-dir>/silly.log.
func setupLogging(cfg config.Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "silly.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return logFile, nil
}

// probeDaemonVersion asks the daemon for its version shortly after startup,
// once the first connection attempt has had time to complete. Purely
// informational.
func probeDaemonVersion(ctx context.Context, client *aria2.Client) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Second):
	}

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := client.Call(callCtx, "getVersion", []any{})
	if err != nil {
		slog.Warn("aria2 version probe failed", "error", err)
		return
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(result, &v); err == nil {
		slog.Info("Connected to aria2", "aria2_version", v.Version)
	}
}
