package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/silly-dl/silly/pkg/aria2"
	"github.com/silly-dl/silly/pkg/bus"
)

const (
	// tickInterval is the live-progress poll cadence.
	tickInterval = 500 * time.Millisecond

	// syncChunkSize bounds one startup multicall so a large backlog cannot
	// time out a single RPC.
	syncChunkSize = 100

	// progressWriteTimeout bounds the spawned per-row progress writes.
	progressWriteTimeout = 5 * time.Second
)

// Caller is the slice of the aria2 client the projector needs. Declared
// here so the projector can be tested with a stub daemon.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
	Multicall(ctx context.Context, calls []aria2.MulticallCall) ([]json.RawMessage, error)
}

// Projector reconciles daemon truth into history rows and publishes
// per-user live updates. It is driven by daemon notifications and by a
// fixed-rate tick; every failure path is logged and swallowed because the
// next event or tick retries naturally.
type Projector struct {
	client        Caller
	store         *Store
	notifications *bus.Bus[aria2.Envelope]
	live          *bus.Bus[LiveMessage]
	interval      time.Duration
}

// NewProjector wires the projector. live is the per-user stream consumed by
// browser history sockets.
func NewProjector(client Caller, store *Store, notifications *bus.Bus[aria2.Envelope], live *bus.Bus[LiveMessage]) *Projector {
	return &Projector{
		client:        client,
		store:         store,
		notifications: notifications,
		live:          live,
		interval:      tickInterval,
	}
}

// Run performs the startup reconciliation pass, then starts the event
// subscriber and the ticker. Returns once both background tasks are
// spawned; they stop when ctx is cancelled.
func (p *Projector) Run(ctx context.Context) {
	p.syncInit(ctx)

	go p.eventLoop(ctx)
	go p.tickLoop(ctx)
}

// syncInit reconciles every non-terminal row against the daemon before
// live updates are enabled. Rows the daemon no longer knows (multicall
// error code 1) are marked "Session lost"; other error codes are logged
// and the row is left untouched.
func (p *Projector) syncInit(ctx context.Context) {
	gids, err := p.store.ReconcilableGids(ctx)
	if err != nil {
		slog.Error("Failed to load reconcilable gids", "error", err)
		return
	}
	if len(gids) == 0 {
		slog.Info("No pending downloads to sync")
		return
	}

	slog.Info("Checking status of pending downloads", "count", len(gids))

	for start := 0; start < len(gids); start += syncChunkSize {
		end := min(start+syncChunkSize, len(gids))
		chunk := gids[start:end]

		calls := make([]aria2.MulticallCall, len(chunk))
		for i, gid := range chunk {
			calls[i] = aria2.MulticallCall{MethodName: "aria2.tellStatus", Params: []any{gid}}
		}

		results, err := p.client.Multicall(ctx, calls)
		if err != nil {
			slog.Error("Sync chunk failed", "error", err)
			continue
		}

		for i, result := range results {
			if i >= len(chunk) {
				break
			}
			gid := chunk[i]

			// Success form is [ { ...status... } ]; failure is an error object.
			var statusArr []json.RawMessage
			if err := json.Unmarshal(result, &statusArr); err == nil {
				if len(statusArr) > 0 {
					meta := Extract(statusArr[0], gid)
					p.upsert(ctx, &meta)
				}
				continue
			}

			code, message, ok := decodeMulticallError(result)
			switch {
			case ok && code == 1:
				slog.Warn("gid not found in aria2, marking as session lost", "gid", gid)
				if err := p.store.MarkSessionLost(ctx, gid); err != nil {
					slog.Error("Failed to mark session lost", "gid", gid, "error", err)
				}
			case ok:
				slog.Error("aria2 error during sync", "gid", gid, "code", code, "message", message)
			default:
				slog.Error("Malformed multicall element during sync", "gid", gid)
			}
		}
	}

	slog.Info("History sync complete")
}

// decodeMulticallError reads the error form of a multicall element. aria2
// emits the fault directly as {code, message}; some proxies nest it under
// an "error" key, so both shapes are accepted.
func decodeMulticallError(result json.RawMessage) (code int64, message string, ok bool) {
	var fault struct {
		Code    *int64 `json:"code"`
		Message string `json:"message"`
		Error   *struct {
			Code    *int64 `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(result, &fault); err != nil {
		return 0, "", false
	}
	if fault.Code != nil {
		return *fault.Code, fault.Message, true
	}
	if fault.Error != nil && fault.Error.Code != nil {
		return *fault.Error.Code, fault.Error.Message, true
	}
	return 0, "", false
}

// eventLoop refreshes a gid whenever the daemon announces anything about
// it. Notifications without an extractable gid are logged and skipped.
func (p *Projector) eventLoop(ctx context.Context) {
	events, cancel := p.notifications.Subscribe()
	defer cancel()

	slog.Info("History event monitor started")

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			if !strings.HasPrefix(env.Method, "aria2.on") {
				continue
			}
			gid := notificationGid(env.Params)
			if gid == "" {
				slog.Warn("Daemon event without a gid", "method", env.Method)
				continue
			}
			slog.Debug("Daemon event", "method", env.Method, "gid", gid)
			p.refreshGid(ctx, gid)
		}
	}
}

// notificationGid pulls params[0].gid out of a notification envelope.
func notificationGid(params json.RawMessage) string {
	var payload []struct {
		GID string `json:"gid"`
	}
	if err := json.Unmarshal(params, &payload); err != nil || len(payload) == 0 {
		return ""
	}
	return payload[0].GID
}

// refreshGid re-reads one gid from the daemon and upserts the row.
// Failures are swallowed; the next event or tick retries.
func (p *Projector) refreshGid(ctx context.Context, gid string) {
	result, err := p.client.Call(ctx, "tellStatus", []any{gid})
	if err != nil {
		slog.Debug("tellStatus failed during refresh", "gid", gid, "error", err)
		return
	}
	meta := Extract(result, gid)
	p.upsert(ctx, &meta)
}

// upsert writes the row and publishes the resulting Event to the owner's
// live stream. Unknown gids are logged and dropped.
func (p *Projector) upsert(ctx context.Context, meta *ItemMetaData) {
	err := p.store.UpsertFromDaemon(ctx, meta)
	switch {
	case err == nil:
		p.live.Publish(LiveMessage{UserID: meta.UserID, Event: meta})
	case err == ErrNotFound:
		slog.Warn("Daemon update for unknown gid", "gid", meta.GID)
	default:
		slog.Error("Database update failed", "gid", meta.GID, "error", err)
	}
}

// tickLoop runs the fixed-rate progress poll. Missed ticks are not caught
// up; a slow tick simply delays the next one.
func (p *Projector) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick polls global stats plus every active download, fans progress writes
// out as short-lived tasks (the cadence must not wait on the store), and
// publishes one Tick per affected user.
func (p *Projector) tick(ctx context.Context) {
	rawStat, err := p.client.Call(ctx, "getGlobalStat", []any{})
	if err != nil {
		return
	}
	var global aria2.GlobalStat
	if err := json.Unmarshal(rawStat, &global); err != nil {
		slog.Debug("Failed to decode global stat", "error", err)
		return
	}

	active, err := p.store.ActiveGids(ctx)
	if err != nil {
		slog.Error("Failed to load active gids", "error", err)
		return
	}
	if len(active) == 0 {
		return
	}

	calls := make([]aria2.MulticallCall, len(active))
	for i, row := range active {
		calls[i] = aria2.MulticallCall{MethodName: "aria2.tellStatus", Params: []any{row.GID}}
	}

	results, err := p.client.Multicall(ctx, calls)
	if err != nil {
		return
	}

	byUser := make(map[int64][]aria2.Status)
	for i, result := range results {
		if i >= len(active) {
			break
		}

		var statusArr []json.RawMessage
		if err := json.Unmarshal(result, &statusArr); err != nil || len(statusArr) == 0 {
			continue
		}
		var status aria2.Status
		if err := json.Unmarshal(statusArr[0], &status); err != nil {
			continue
		}

		byUser[active[i].UserID] = append(byUser[active[i].UserID], status)

		gid := active[i].GID
		go func(status aria2.Status) {
			writeCtx, cancel := context.WithTimeout(context.Background(), progressWriteTimeout)
			defer cancel()

			var filesJSON *string
			if b, err := json.Marshal(FilePaths(&status)); err == nil {
				s := string(b)
				filesJSON = &s
			}
			if err := p.store.UpdateProgress(writeCtx, gid, filesJSON, status.CompletedLength, status.TotalLength, status.UploadLength); err != nil {
				slog.Debug("Progress write failed", "gid", gid, "error", err)
			}
		}(status)
	}

	for userID, tasks := range byUser {
		p.live.Publish(LiveMessage{
			UserID: userID,
			Tick:   &TickPayload{Global: global, Tasks: tasks},
		})
	}
}
