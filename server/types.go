// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/internal/httpwire"
	"github.com/momentics/hioload-serve/internal/registry"
	"github.com/momentics/hioload-serve/pool"
	"github.com/momentics/hioload-serve/protocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string // TCP bind address, e.g. ":3000"
	InitialBuffer   int    // first size of the per-connection HTTP read buffer
	MaxRequestSize  int    // ceiling the HTTP read buffer may grow to
	MaxFramePayload int    // unmask scratch bound per WebSocket frame
	MaxMessageSize  int    // cap on a reassembled fragmented message
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":3000",
		InitialBuffer:   httpwire.DefaultInitialBuffer,
		MaxRequestSize:  httpwire.DefaultMaxRequest,
		MaxFramePayload: protocol.DefaultMaxFramePayload,
		MaxMessageSize:  16 << 20,
	}
}

// Server owns one listening socket, the connection registry and the
// registered handler and callbacks. Plain HTTP exchanges are served on the
// accept goroutine; every WebSocket session gets its own goroutine.
type Server struct {
	cfg   *Config
	reg   *registry.Registry
	pools *pool.Manager

	// hmu guards the single-tenant registration: a new handler or callback
	// set replaces the previous one.
	hmu      sync.RWMutex
	handler  api.Handler
	wsEvents api.WebSocketCallbacks

	mu     sync.Mutex
	ln     net.Listener
	active net.Conn // HTTP connection currently served by the accept loop
	closed atomic.Bool

	sessions sync.WaitGroup
}

var _ api.Broadcaster = (*Server)(nil)
