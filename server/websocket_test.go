// File: server/websocket_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interop tests driving the server with gorilla/websocket clients.

package server_test

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/protocol"
	"github.com/momentics/hioload-serve/server"
)

func wsDial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	return c
}

func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	mt, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	return string(data)
}

// chatServer greets every connection with its id and understands
// "join:<room>", "leave:<room>", "room:<room>:<text>", "all:<text>" and "echo:<text>".
func chatServer(t *testing.T) (*server.Server, string) {
	var srv *server.Server
	cb := api.WebSocketCallbacks{
		Open: func(c api.Conn) {
			_ = c.Send([]byte("id:" + strconv.FormatUint(c.ID(), 10)))
		},
		Message: func(c api.Conn, m api.Message) {
			cmd, arg, _ := strings.Cut(m.Text(), ":")
			switch cmd {
			case "join":
				_ = srv.Join(c.ID(), arg)
				_ = c.Send([]byte("joined:" + strings.Join(c.Rooms(), ",")))
			case "leave":
				_ = srv.Leave(c.ID(), arg)
				_ = c.Send([]byte("left"))
			case "room":
				room, text, _ := strings.Cut(arg, ":")
				n := srv.BroadcastRoom(room, []byte(text), c.ID())
				_ = c.Send([]byte("sent:" + strconv.Itoa(n)))
			case "all":
				n := srv.Broadcast([]byte(arg), 0)
				_ = c.Send([]byte("sent:" + strconv.Itoa(n)))
			case "echo":
				if m.Binary {
					_ = c.SendBinary(m.Data)
					return
				}
				_ = c.Send([]byte(arg))
			}
		},
	}
	srv, addr := startServer(t, server.WithWebSocketHandlers(cb))
	return srv, addr
}

func openClient(t *testing.T, addr string) (*websocket.Conn, uint64) {
	t.Helper()
	c := wsDial(t, addr)
	greeting := readText(t, c)
	require.True(t, strings.HasPrefix(greeting, "id:"), greeting)
	id, err := strconv.ParseUint(strings.TrimPrefix(greeting, "id:"), 10, 64)
	require.NoError(t, err)
	return c, id
}

func TestWebSocketEcho(t *testing.T) {
	_, addr := chatServer(t)
	c, _ := openClient(t, addr)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("echo:hello")))
	assert.Equal(t, "hello", readText(t, c))

	big := "echo:" + strings.Repeat("x", 70000)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(big)))
	assert.Equal(t, big[5:], readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, []byte("echo:\x00\x01")))
	mt, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte("echo:\x00\x01"), data)
}

func TestWebSocketIDsStrictlyIncrease(t *testing.T) {
	_, addr := chatServer(t)
	var last uint64
	for i := 0; i < 5; i++ {
		_, id := openClient(t, addr)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestWebSocketRoomBroadcastExcludesSender(t *testing.T) {
	_, addr := chatServer(t)
	a, _ := openClient(t, addr)
	b, _ := openClient(t, addr)
	c, _ := openClient(t, addr)
	outsider, _ := openClient(t, addr)

	for _, cl := range []*websocket.Conn{a, b, c} {
		require.NoError(t, cl.WriteMessage(websocket.TextMessage, []byte("join:lobby")))
		assert.Equal(t, "joined:lobby", readText(t, cl))
	}
	// joining twice leaves one membership
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("join:lobby")))
	assert.Equal(t, "joined:lobby", readText(t, a))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("room:lobby:hi all")))
	assert.Equal(t, "sent:2", readText(t, a))
	assert.Equal(t, "hi all", readText(t, b))
	assert.Equal(t, "hi all", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("leave:lobby")))
	assert.Equal(t, "left", readText(t, c))
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("room:lobby:again")))
	assert.Equal(t, "sent:1", readText(t, b))
	assert.Equal(t, "again", readText(t, a))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("room:empty:nobody")))
	assert.Equal(t, "sent:0", readText(t, a))

	// the outsider saw none of the room traffic; its next frame is the global broadcast
	require.NoError(t, outsider.WriteMessage(websocket.TextMessage, []byte("all:everyone")))
	assert.Equal(t, "everyone", readText(t, outsider))
	assert.Equal(t, "sent:4", readText(t, outsider))
}

func TestWebSocketPingGetsPong(t *testing.T) {
	_, addr := chatServer(t)
	c, _ := openClient(t, addr)

	var pong atomic.Value
	c.SetPongHandler(func(data string) error {
		pong.Store(data)
		return nil
	})
	require.NoError(t, c.WriteControl(websocket.PingMessage, []byte("are-you-there"), time.Now().Add(time.Second)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("echo:after")))
	assert.Equal(t, "after", readText(t, c))
	assert.Equal(t, "are-you-there", pong.Load())
}

func TestWebSocketCloseFiresCallbackAndUnregisters(t *testing.T) {
	closed := make(chan uint64, 1)
	s, addr := startServer(t, server.WithWebSocketHandlers(api.WebSocketCallbacks{
		Close: func(c api.Conn) { closed <- c.ID() },
	}))
	c := wsDial(t, addr)
	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	select {
	case id := <-closed:
		assert.Equal(t, uint64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("close callback not fired")
	}
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketFramesInHandshakePacket(t *testing.T) {
	_, addr := chatServer(t)
	c, br := dial(t, addr)

	key := [4]byte{1, 2, 3, 4}
	_, err := io.WriteString(c, "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n"+
		string(protocol.EncodeMasked([]byte("echo:early"), protocol.OpcodeText, true, key)))
	require.NoError(t, err)

	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	assert.Equal(t, 101, resp.StatusCode)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))

	assert.Equal(t, "id:1", readFrame(t, br))
	assert.Equal(t, "early", readFrame(t, br))
}

func readFrame(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	dec := protocol.NewDecoder(protocol.DefaultMaxFramePayload)
	var buf []byte
	for {
		f, err := dec.Decode(buf)
		if err == nil {
			return string(f.Payload)
		}
		require.ErrorIs(t, err, protocol.ErrNeedMoreData)
		b, err := br.ReadByte()
		require.NoError(t, err)
		buf = append(buf, b)
	}
}

func TestCloseDisconnectsWebSockets(t *testing.T) {
	closed := make(chan struct{}, 2)
	s, addr := startServer(t, server.WithWebSocketHandlers(api.WebSocketCallbacks{
		Close: func(api.Conn) { closed <- struct{}{} },
	}))
	a := wsDial(t, addr)
	b := wsDial(t, addr)
	require.Eventually(t, func() bool { return s.Len() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	for _, c := range []*websocket.Conn{a, b} {
		_, _, err := c.ReadMessage()
		assert.Error(t, err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("close callback not fired on server Close")
		}
	}
}

func TestReplacedCallbacksApplyToLiveSessions(t *testing.T) {
	s, addr := startServer(t, server.WithWebSocketHandlers(api.WebSocketCallbacks{
		Message: func(c api.Conn, m api.Message) { _ = c.Send([]byte("v1")) },
	}))
	c := wsDial(t, addr)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("x")))
	assert.Equal(t, "v1", readText(t, c))

	s.SetWebSocketHandlers(api.WebSocketCallbacks{
		Message: func(c api.Conn, m api.Message) { _ = c.Send([]byte("v2")) },
	})
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("x")))
	assert.Equal(t, "v2", readText(t, c))
}
