// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/pool"
)

// Option customizes server initialization.
type Option func(*Server)

// WithListenAddr sets the bind address.
func WithListenAddr(addr string) Option {
	return func(s *Server) {
		s.cfg.ListenAddr = addr
	}
}

// WithPort binds to the given port on all interfaces.
func WithPort(port int) Option {
	return func(s *Server) {
		s.cfg.ListenAddr = fmt.Sprintf(":%d", port)
	}
}

// WithInitialBuffer overrides the first HTTP read buffer size.
func WithInitialBuffer(n int) Option {
	return func(s *Server) {
		s.cfg.InitialBuffer = n
	}
}

// WithMaxRequestSize overrides the HTTP buffer ceiling.
func WithMaxRequestSize(n int) Option {
	return func(s *Server) {
		s.cfg.MaxRequestSize = n
	}
}

// WithMaxFramePayload overrides the per-frame unmask bound.
func WithMaxFramePayload(n int) Option {
	return func(s *Server) {
		s.cfg.MaxFramePayload = n
	}
}

// WithMaxMessageSize caps reassembled fragmented messages.
func WithMaxMessageSize(n int) Option {
	return func(s *Server) {
		s.cfg.MaxMessageSize = n
	}
}

// WithHandler registers the HTTP handler up front.
func WithHandler(h api.Handler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithWebSocketHandlers registers the WebSocket callbacks up front.
func WithWebSocketHandlers(cb api.WebSocketCallbacks) Option {
	return func(s *Server) {
		s.wsEvents = cb
	}
}

// WithBufferPools shares a pool manager between servers.
func WithBufferPools(m *pool.Manager) Option {
	return func(s *Server) {
		s.pools = m
	}
}

// FromControl maps the loaded runtime configuration onto server options.
func FromControl(c *control.Config) []Option {
	return []Option{
		WithListenAddr(c.Addr()),
		WithInitialBuffer(c.HTTP.InitialBuffer),
		WithMaxRequestSize(c.HTTP.MaxRequestSize),
		WithMaxFramePayload(c.WebSocket.MaxFramePayload),
		WithMaxMessageSize(c.WebSocket.MaxMessageSize),
	}
}
