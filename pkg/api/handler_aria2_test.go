package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silly-dl/silly/pkg/aria2"
	"github.com/silly-dl/silly/pkg/auth"
)

// stubDaemon lets each test script the daemon side of a handler call.
type stubDaemon struct {
	call      func(method string, params []any) (json.RawMessage, error)
	multicall func(calls []aria2.MulticallCall) ([]json.RawMessage, error)
}

func (s *stubDaemon) Call(_ context.Context, method string, params []any) (json.RawMessage, error) {
	if s.call == nil {
		return nil, fmt.Errorf("unexpected call %s", method)
	}
	return s.call(method, params)
}

func (s *stubDaemon) Multicall(_ context.Context, calls []aria2.MulticallCall) ([]json.RawMessage, error) {
	if s.multicall == nil {
		return nil, fmt.Errorf("unexpected multicall")
	}
	return s.multicall(calls)
}

func newContext(method, target, body string) (*echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func asUser(c *echo.Context, uid int64) {
	c.Set(claimsKey, &auth.Claims{UID: uid, Role: string(auth.RoleUser)})
}

func TestAria2HandlerValidation(t *testing.T) {
	s := &Server{daemon: &stubDaemon{}}

	tests := []struct {
		name    string
		handler func(*echo.Context) error
		body    string
		errMsg  string
	}{
		{"add without uris", s.addURIsHandler, `{"uris":[]}`, "uris is required"},
		{"add with blank uri", s.addURIsHandler, `{"uris":["http://x"," "]}`, "blank"},
		{"torrent without data", s.addTorrentHandler, `{}`, "must not be empty"},
		{"torrents without entries", s.addTorrentsHandler, `{"torrents":[]}`, "torrents is required"},
		{"torrents with empty data", s.addTorrentsHandler, `{"torrents":[{"torrent":""}]}`, "must not be empty"},
		{"pause without gid", s.pauseHandler, `{}`, "gid is required"},
		{"details without gid", s.detailsHandler, `{}`, "gid is required"},
		{"move with bad how", s.moveHandler, `{"gid":"g","pos":1,"how":"SIDEWAYS"}`, "how must be"},
		{"move without gid", s.moveHandler, `{"pos":1,"how":"POS_SET"}`, "gid is required"},
		{"global without options", s.globalOptionsHandler, `{}`, "options is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodPost, "/", tt.body)
			asUser(c, 1)

			require.NoError(t, tt.handler(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.errMsg)
		})
	}
}

func TestGidCommandResponses(t *testing.T) {
	var gotMethod string
	s := &Server{daemon: &stubDaemon{
		call: func(method string, params []any) (json.RawMessage, error) {
			gotMethod = method
			return json.RawMessage(`"ok"`), nil
		},
	}}

	tests := []struct {
		handler    func(*echo.Context) error
		wantMethod string
		wantBody   string
	}{
		{s.pauseHandler, "pause", `{"status":"paused"}`},
		{s.resumeHandler, "unpause", `{"status":"resumed"}`},
		{s.removeHandler, "forceRemove", `{"status":"removed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.wantMethod, func(t *testing.T) {
			c, rec := newContext(http.MethodPost, "/", `{"gid":"g1"}`)
			asUser(c, 1)

			require.NoError(t, tt.handler(c))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantMethod, gotMethod)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestDaemonErrorsMapTo502(t *testing.T) {
	s := &Server{daemon: &stubDaemon{
		call: func(method string, params []any) (json.RawMessage, error) {
			return nil, &aria2.DaemonError{Code: 1, Message: "not found"}
		},
	}}

	c, rec := newContext(http.MethodPost, "/", `{"gid":"g1"}`)
	asUser(c, 1)

	require.NoError(t, s.pauseHandler(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestTransportLossMapsTo502(t *testing.T) {
	s := &Server{daemon: &stubDaemon{
		call: func(method string, params []any) (json.RawMessage, error) {
			return nil, aria2.ErrReplyDropped
		},
	}}

	c, rec := newContext(http.MethodPost, "/", `{"gid":"g1"}`)
	asUser(c, 1)

	require.NoError(t, s.pauseHandler(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDetailsBundlesFilesPeersServers(t *testing.T) {
	var gotCalls []aria2.MulticallCall
	s := &Server{daemon: &stubDaemon{
		multicall: func(calls []aria2.MulticallCall) ([]json.RawMessage, error) {
			gotCalls = calls
			return []json.RawMessage{
				json.RawMessage(`[[{"path":"/dl/a.bin"}]]`),
				json.RawMessage(`[[]]`),
				json.RawMessage(`[[{"uri":"http://mirror"}]]`),
			}, nil
		},
	}}

	c, rec := newContext(http.MethodPost, "/", `{"gid":"g1"}`)
	asUser(c, 1)

	require.NoError(t, s.detailsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, gotCalls, 3)
	assert.Equal(t, "aria2.getFiles", gotCalls[0].MethodName)
	assert.Equal(t, "aria2.getPeers", gotCalls[1].MethodName)
	assert.Equal(t, "aria2.getServers", gotCalls[2].MethodName)
	for _, call := range gotCalls {
		assert.Equal(t, []any{"g1"}, call.Params)
	}

	assert.JSONEq(t, `[[[{"path":"/dl/a.bin"}]],[[]],[[{"uri":"http://mirror"}]]]`, rec.Body.String())
}

func TestMoveReturnsNewPosition(t *testing.T) {
	s := &Server{daemon: &stubDaemon{
		call: func(method string, params []any) (json.RawMessage, error) {
			assert.Equal(t, "changePosition", method)
			assert.Equal(t, []any{"g1", 2, "POS_SET"}, params)
			return json.RawMessage(`2`), nil
		},
	}}

	c, rec := newContext(http.MethodPost, "/", `{"gid":"g1","pos":2,"how":"POS_SET"}`)
	asUser(c, 1)

	require.NoError(t, s.moveHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"newPosition":2}`, rec.Body.String())
}

func TestPurge(t *testing.T) {
	var gotMethod string
	s := &Server{daemon: &stubDaemon{
		call: func(method string, params []any) (json.RawMessage, error) {
			gotMethod = method
			return json.RawMessage(`"OK"`), nil
		},
	}}

	c, rec := newContext(http.MethodPost, "/", "")
	asUser(c, 1)

	require.NoError(t, s.purgeHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "purgeDownloadResult", gotMethod)
	assert.JSONEq(t, `{"status":"purged"}`, rec.Body.String())
}

func TestGlobalOptions(t *testing.T) {
	s := &Server{daemon: &stubDaemon{
		call: func(method string, params []any) (json.RawMessage, error) {
			assert.Equal(t, "changeGlobalOption", method)
			return json.RawMessage(`"OK"`), nil
		},
	}}

	c, rec := newContext(http.MethodPost, "/", `{"options":{"max-overall-download-limit":"1M"}}`)
	asUser(c, 1)

	require.NoError(t, s.globalOptionsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
