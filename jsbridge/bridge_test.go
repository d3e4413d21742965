// File: jsbridge/bridge_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package jsbridge_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/jsbridge"
)

type sent struct {
	id   uint64
	data string
}

type fakeHost struct {
	mu        sync.Mutex
	handler   api.Handler
	callbacks api.WebSocketCallbacks
	sends     []sent
	joins     map[uint64][]string
	broadcast []sent // id holds excludeID
	roomCasts []string
}

func newFakeHost() *fakeHost { return &fakeHost{joins: map[uint64][]string{}} }

func (h *fakeHost) Send(id uint64, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == 0 {
		return api.ErrConnNotFound
	}
	h.sends = append(h.sends, sent{id, string(data)})
	return nil
}

func (h *fakeHost) Broadcast(data []byte, excludeID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast = append(h.broadcast, sent{excludeID, string(data)})
	return 3
}

func (h *fakeHost) Join(id uint64, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joins[id] = append(h.joins[id], room)
	return nil
}

func (h *fakeHost) Leave(id uint64, room string) error { return nil }

func (h *fakeHost) BroadcastRoom(room string, data []byte, excludeID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roomCasts = append(h.roomCasts, room+"|"+string(data))
	return 1
}

func (h *fakeHost) Rooms(id uint64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joins[id]
}

func (h *fakeHost) SetHandler(hd api.Handler)                      { h.handler = hd }
func (h *fakeHost) SetWebSocketHandlers(cb api.WebSocketCallbacks) { h.callbacks = cb }

type fakeConn struct {
	id  uint64
	out []string
}

func (c *fakeConn) ID() uint64             { return c.id }
func (c *fakeConn) Send(data []byte) error { c.out = append(c.out, string(data)); return nil }
func (c *fakeConn) SendBinary(data []byte) error {
	c.out = append(c.out, "bin:"+string(data))
	return nil
}
func (c *fakeConn) Rooms() []string    { return nil }
func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:5555" }

func load(t *testing.T, src string, cfg jsbridge.Config) (*jsbridge.Bridge, *fakeHost) {
	t.Helper()
	host := newFakeHost()
	b, err := jsbridge.New(host, cfg)
	require.NoError(t, err)
	require.NoError(t, b.Load("test.js", src))
	return b, host
}

func TestOnRequestRegistersHandler(t *testing.T) {
	b, host := load(t, `
		server.onRequest(function (req) {
			return req.method + " " + req.path + " " + req.headers["x-name"] + " " + req.body
		})
	`, jsbridge.Config{})
	require.Same(t, b, host.handler)

	resp, err := host.handler.ServeRequest(&api.Request{
		Method: "POST", Path: "/hi", Header: api.Header{"x-name": "bob"}, Body: []byte("payload"),
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "text/plain", resp.Type())
	assert.Equal(t, "POST /hi bob payload", string(resp.Body))
}

func TestResponseShapes(t *testing.T) {
	b, _ := load(t, `
		server.onRequest(function (req) {
			switch (req.path) {
			case "/full":
				return {status: 201, body: "made", headers: {"X-Id": 7}, contentType: "text/html"}
			case "/json-body":
				return {status: 202, body: {ok: true}}
			case "/plain-object":
				return {items: [1, 2]}
			case "/nothing":
				return
			case "/number":
				return 42
			case "/html-header":
				return {body: "<h1>hi</h1>", headers: {"content-type": "text/html"}}
			case "/json-with-header":
				return {body: {ok: true}, headers: {"Content-Type": "application/vnd.api+json"}}
			case "/bad-status":
				return {status: 42}
			}
		})
	`, jsbridge.Config{})

	serve := func(path string) (*api.Response, error) {
		return b.ServeRequest(&api.Request{Method: "GET", Path: path, Header: api.Header{}})
	}

	resp, err := serve("/full")
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "made", string(resp.Body))
	assert.Equal(t, "text/html", resp.ContentType)
	assert.Equal(t, "7", resp.Header["X-Id"])

	resp, err = serve("/json-body")
	require.NoError(t, err)
	assert.Equal(t, 202, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)

	resp, err = serve("/plain-object")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[1,2]}`, string(resp.Body))

	resp, err = serve("/nothing")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Empty(t, resp.Body)

	resp, err = serve("/number")
	require.NoError(t, err)
	assert.Equal(t, "42", string(resp.Body))

	resp, err = serve("/html-header")
	require.NoError(t, err)
	assert.Equal(t, "text/html", resp.ContentType)
	assert.Equal(t, "text/html", resp.Type())

	resp, err = serve("/json-with-header")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "application/vnd.api+json", resp.ContentType)

	_, err = serve("/bad-status")
	assert.Error(t, err)
}

func TestScriptExceptionFailsRequest(t *testing.T) {
	b, _ := load(t, `server.onRequest(function () { throw new Error("nope") })`, jsbridge.Config{})
	_, err := b.ServeRequest(&api.Request{Header: api.Header{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, 500, api.StatusOf(err))
}

func TestNoOnRequestIs404(t *testing.T) {
	b, _ := load(t, `1 + 1`, jsbridge.Config{})
	_, err := b.ServeRequest(&api.Request{Header: api.Header{}})
	assert.Equal(t, 404, api.StatusOf(err))
}

func TestLoadReportsSyntaxAndTypeErrors(t *testing.T) {
	host := newFakeHost()
	b, err := jsbridge.New(host, jsbridge.Config{})
	require.NoError(t, err)
	assert.Error(t, b.Load("broken.js", `server.onRequest(`))
	assert.Error(t, b.Load("typed.js", `server.onRequest("not a function")`))
	assert.Nil(t, host.handler)
}

func TestTimeoutInterruptsScript(t *testing.T) {
	b, _ := load(t, `server.onRequest(function () { for (;;) {} })`, jsbridge.Config{Timeout: 50 * time.Millisecond})
	_, err := b.ServeRequest(&api.Request{Header: api.Header{}})
	assert.ErrorIs(t, err, jsbridge.ErrTimeout)

	// the runtime is usable again afterwards
	require.NoError(t, b.Load("again.js", `server.onRequest(function () { return "ok" })`))
	resp, err := b.ServeRequest(&api.Request{Header: api.Header{}})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestWebSocketCallbacksDriveHost(t *testing.T) {
	_, host := load(t, `
		server.websocket({
			open: function (conn) {
				server.join(conn.id, "lobby")
				conn.send("welcome " + conn.id)
			},
			message: function (conn, msg) {
				if (typeof msg !== "string") {
					conn.sendBinary(msg)
					return
				}
				server.broadcastRoom("lobby", msg, conn.id)
				server.broadcast({from: conn.id, text: msg})
				server.send(99, "direct")
				conn.send(server.rooms(conn.id).join(","))
			},
			close: function (conn) {
				server.send(1, "bye " + conn.id)
			},
		})
	`, jsbridge.Config{})
	cb := host.callbacks
	require.NotNil(t, cb.Open)
	require.NotNil(t, cb.Message)
	require.NotNil(t, cb.Close)

	c := &fakeConn{id: 5}
	cb.Open(c)
	cb.Message(c, api.Message{Data: []byte("hello")})
	cb.Message(c, api.Message{Binary: true, Data: []byte{1, 2}})
	cb.Close(c)

	assert.Equal(t, []string{"welcome 5", "lobby", "bin:\x01\x02"}, c.out)
	assert.Equal(t, []string{"lobby"}, host.joins[5])
	assert.Equal(t, []string{"lobby|hello"}, host.roomCasts)
	require.Len(t, host.broadcast, 1)
	assert.Zero(t, host.broadcast[0].id)
	assert.JSONEq(t, `{"from":5,"text":"hello"}`, host.broadcast[0].data)
	assert.Equal(t, []sent{{99, "direct"}, {1, "bye 5"}}, host.sends)
}

func TestWebSocketCallbackExceptionIsSwallowed(t *testing.T) {
	_, host := load(t, `
		server.websocket({message: function (conn, msg) {
			if (msg === "bad") throw new Error("bad message")
			conn.send("ok")
		}})
	`, jsbridge.Config{})
	c := &fakeConn{id: 1}
	assert.NotPanics(t, func() {
		host.callbacks.Message(c, api.Message{Data: []byte("bad")})
	})
	host.callbacks.Message(c, api.Message{Data: []byte("fine")})
	assert.Equal(t, []string{"ok"}, c.out)
	assert.Nil(t, host.callbacks.Open)
}

func TestWebSocketRegistersOnlySuppliedCallbacks(t *testing.T) {
	_, host := load(t, `server.websocket({})`, jsbridge.Config{})
	assert.True(t, host.callbacks.Empty())

	_, host = load(t, `server.websocket({close: function () {}})`, jsbridge.Config{})
	assert.Nil(t, host.callbacks.Open)
	assert.Nil(t, host.callbacks.Message)
	assert.NotNil(t, host.callbacks.Close)
	assert.False(t, host.callbacks.Empty())
}

func TestTimeoutDoesNotLeakIntoNextCall(t *testing.T) {
	b, _ := load(t, `
		server.onRequest(function (req) {
			if (req.path === "/spin") { for (;;) {} }
			return "ok"
		})
	`, jsbridge.Config{Timeout: 50 * time.Millisecond})

	for i := 0; i < 5; i++ {
		_, err := b.ServeRequest(&api.Request{Method: "GET", Path: "/spin", Header: api.Header{}})
		require.ErrorIs(t, err, jsbridge.ErrTimeout)

		resp, err := b.ServeRequest(&api.Request{Method: "GET", Path: "/", Header: api.Header{}})
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(path, []byte(`console.log("loaded", 1); server.onRequest(function () { return "file" })`), 0o600))

	host := newFakeHost()
	b, err := jsbridge.New(host, jsbridge.Config{})
	require.NoError(t, err)
	require.NoError(t, b.LoadFile(path))
	resp, err := host.handler.ServeRequest(&api.Request{Header: api.Header{}})
	require.NoError(t, err)
	assert.Equal(t, "file", string(resp.Body))

	assert.Error(t, b.LoadFile(filepath.Join(t.TempDir(), "missing.js")))
}
