// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"io"
	"net"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/internal/logging"
	"github.com/momentics/hioload-serve/internal/registry"
	"github.com/momentics/hioload-serve/pool"
	"github.com/momentics/hioload-serve/transport/tcp"
)

// New builds a Server. A nil cfg means DefaultConfig.
func New(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	s := &Server{
		cfg: &c,
		reg: registry.New(),
	}
	for _, o := range opts {
		o(s)
	}
	def := DefaultConfig()
	if s.cfg.InitialBuffer <= 0 {
		s.cfg.InitialBuffer = def.InitialBuffer
	}
	if s.cfg.MaxRequestSize <= 0 {
		s.cfg.MaxRequestSize = def.MaxRequestSize
	}
	if s.cfg.MaxFramePayload <= 0 {
		s.cfg.MaxFramePayload = def.MaxFramePayload
	}
	if s.cfg.MaxMessageSize <= 0 {
		s.cfg.MaxMessageSize = def.MaxMessageSize
	}
	if s.pools == nil {
		s.pools = pool.Default()
	}
	s.reg.OnDeliveryError = func(e registry.DeliveryError) {
		logging.Warn().Err(e.Err).Uint64("conn_id", e.ID).Msg("broadcast delivery failed")
	}
	return s
}

// SetHandler registers the HTTP handler, replacing any previous one.
func (s *Server) SetHandler(h api.Handler) {
	s.hmu.Lock()
	s.handler = h
	s.hmu.Unlock()
}

// SetWebSocketHandlers registers the WebSocket callbacks, replacing any
// previous set. Running sessions pick up the new callbacks on their next event.
func (s *Server) SetWebSocketHandlers(cb api.WebSocketCallbacks) {
	s.hmu.Lock()
	s.wsEvents = cb
	s.hmu.Unlock()
}

func (s *Server) currentHandler() api.Handler {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.handler
}

func (s *Server) callbacks() api.WebSocketCallbacks {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.wsEvents
}

// ListenAndServe binds cfg.ListenAddr and serves until ctx is done or Close
// is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := tcp.Listen(ctx, s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Len returns the number of live WebSocket connections.
func (s *Server) Len() int { return s.reg.Len() }

// Close stops accepting, drops the HTTP connection being served and closes
// every live WebSocket connection. Their sessions fire close callbacks as
// they exit. Close is idempotent.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	ln, active := s.ln, s.active
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	if active != nil {
		_ = active.Close()
	}
	s.closeSessions()
	return err
}

// Shutdown closes the server and waits for every session goroutine to exit
// or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) closeSessions() {
	for _, id := range s.reg.IDs() {
		if p, ok := s.reg.Get(id); ok {
			if c, ok := p.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}
}
