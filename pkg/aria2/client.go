package aria2

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/silly-dl/silly/pkg/bus"
)

const (
	// commandBuffer bounds outbound calls queued for the worker; callers
	// block when it is full.
	commandBuffer = 32

	// eventBuffer is the notification bus capacity per subscriber.
	eventBuffer = 100

	defaultReconnectDelay = 10 * time.Second
	writeTimeout          = 10 * time.Second

	// readLimit allows large multicall responses; the websocket default of
	// 32 KiB is too small for a 100-gid tellStatus batch.
	readLimit = 1 << 24
)

// Config configures the bridge client.
type Config struct {
	// URL is the daemon JSON-RPC WebSocket endpoint (ws:// or wss://).
	URL string
	// Secret is the RPC token; empty disables injection.
	Secret string
	// OnConnState is invoked with the latched connectivity state. Called
	// from the worker goroutine, on changes only. Optional.
	OnConnState func(alive bool)
	// ReconnectDelay overrides the 10s connect retry gap. Tests only.
	ReconnectDelay time.Duration
}

type callResult struct {
	result json.RawMessage
	err    error
}

type call struct {
	method string
	params []any
	reply  chan callResult
}

// Client is the process-wide handle to the aria2 daemon. All RPC traffic
// multiplexes over one WebSocket owned by a single worker goroutine;
// daemon notifications fan out on the Notifications bus.
type Client struct {
	cfg      Config
	commands chan *call
	done     chan struct{}
	events   *bus.Bus[Envelope]
	nextID   uint64
	alive    bool
}

// New creates a Client. The connection is not established until Run.
func New(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Client{
		cfg:      cfg,
		commands: make(chan *call, commandBuffer),
		done:     make(chan struct{}),
		events:   bus.NewBus[Envelope](eventBuffer),
	}
}

// Notifications is the broadcast bus of daemon notification envelopes.
// Lossy under slow consumers; subscribers must tolerate gaps.
func (c *Client) Notifications() *bus.Bus[Envelope] {
	return c.events
}

// Call performs one JSON-RPC request and waits for the matching response.
// method is the short name ("tellStatus") or a system.* name; callers never
// add the aria2. prefix or the secret token themselves.
//
// Returns ErrWorkerUnavailable when the worker has shut down, ErrReplyDropped
// when the connection is lost before the response arrives (or the call is
// issued while disconnected), a *DaemonError when the daemon answers with an
// error object, and the raw result otherwise.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	cl := &call{
		method: method,
		params: params,
		reply:  make(chan callResult, 1),
	}

	select {
	case c.commands <- cl:
	case <-c.done:
		return nil, ErrWorkerUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-cl.reply:
		return res.result, res.err
	case <-c.done:
		return nil, ErrWorkerUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Multicall performs a system.multicall batch and splits the parallel
// result array. Each element is either a one-element success array or an
// error object; callers inspect the raw form.
func (c *Client) Multicall(ctx context.Context, calls []MulticallCall) ([]json.RawMessage, error) {
	result, err := c.Call(ctx, "system.multicall", []any{calls})
	if err != nil {
		return nil, err
	}
	var results []json.RawMessage
	if err := json.Unmarshal(result, &results); err != nil {
		return nil, fmt.Errorf("failed to decode multicall result: %w", err)
	}
	return results, nil
}

// Run drives the connection lifecycle until ctx is cancelled: connect,
// serve frames, and on any failure retry after ReconnectDelay. Calls made
// while disconnected fail fast with ErrReplyDropped.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)

	for {
		c.setAlive(false)
		slog.Info("Connecting to aria2", "url", c.cfg.URL)

		conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Failed to connect to aria2", "error", err, "retry_in", c.cfg.ReconnectDelay)
			if !c.waitRetry(ctx) {
				return
			}
			continue
		}
		conn.SetReadLimit(readLimit)

		slog.Info("Connected to aria2 daemon")
		c.setAlive(true)
		c.session(ctx, conn)
		c.setAlive(false)

		if ctx.Err() != nil {
			return
		}
	}
}

// waitRetry sleeps out the reconnect delay while failing any calls that
// arrive in the meantime. Returns false when ctx is cancelled.
func (c *Client) waitRetry(ctx context.Context) bool {
	t := time.NewTimer(c.cfg.ReconnectDelay)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case cmd := <-c.commands:
			cmd.reply <- callResult{err: ErrReplyDropped}
		case <-t.C:
			return true
		}
	}
}

// session runs the frame loop over one live connection. On return every
// pending call is failed with ErrReplyDropped and the connection is closed.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) {
	pending := make(map[string]chan callResult)
	defer func() {
		_ = conn.CloseNow()
		for id, reply := range pending {
			delete(pending, id)
			reply <- callResult{err: ErrReplyDropped}
		}
	}()

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			typ, data, err := conn.Read(readCtx)
			if err != nil {
				readErr <- err
				return
			}
			if typ != websocket.MessageText {
				continue // binary frames are ignored
			}
			select {
			case frames <- data:
			case <-readCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErr:
			slog.Warn("aria2 socket closed", "error", err)
			return

		case data := <-frames:
			c.handleFrame(data, pending)

		case cmd := <-c.commands:
			id := strconv.FormatUint(c.nextRequestID(), 10)
			params := injectToken(c.cfg.Secret, cmd.method, cmd.params)
			req := Request{
				ID:      id,
				JSONRPC: jsonrpcVersion,
				Method:  qualifyMethod(cmd.method),
				Params:  params,
			}
			data, err := json.Marshal(req)
			if err != nil {
				cmd.reply <- callResult{err: fmt.Errorf("failed to encode request: %w", err)}
				continue
			}

			pending[id] = cmd.reply

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Error("Failed to send to aria2", "error", err)
				return
			}
		}
	}
}

// nextRequestID assigns the next request id. Only the worker goroutine
// increments, so a plain counter suffices; ids survive reconnects and are
// strictly increasing for the life of the process.
func (c *Client) nextRequestID() uint64 {
	c.nextID++
	return c.nextID
}

// handleFrame routes one decoded text frame: responses resolve their
// pending call, notifications go to the bus, anything else is dropped.
func (c *Client) handleFrame(data []byte, pending map[string]chan callResult) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Debug("Dropping undecodable aria2 frame", "error", err)
		return
	}

	if env.ID != nil {
		reply, ok := pending[*env.ID]
		if !ok {
			return // response for an unknown (already dropped) id
		}
		delete(pending, *env.ID)
		switch {
		case env.Error != nil:
			reply <- callResult{err: env.Error}
		case env.Result != nil:
			reply <- callResult{result: env.Result}
		default:
			reply <- callResult{err: ErrReplyDropped}
		}
		return
	}

	if env.Method != "" {
		env.Raw = data
		c.events.Publish(env)
		slog.Debug("aria2 event", "method", env.Method)
	}
}

// setAlive publishes latched connectivity on change.
func (c *Client) setAlive(alive bool) {
	if c.alive == alive {
		return
	}
	c.alive = alive
	if c.cfg.OnConnState != nil {
		c.cfg.OnConnState(alive)
	}
}
