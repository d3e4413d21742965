// File: server/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accept loop and per-connection dispatch. Plain HTTP is served synchronously
// on the accept goroutine, so a slow handler delays every other HTTP client.
// WebSocket upgrades are handshaken and registered here, then handed to a
// session goroutine.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/internal/httpwire"
	"github.com/momentics/hioload-serve/internal/logging"
	"github.com/momentics/hioload-serve/internal/session"
	"github.com/momentics/hioload-serve/protocol"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second

	lingerTimeout    = 100 * time.Millisecond
	lingerDrainLimit = 256 << 10
)

// Serve accepts connections on ln until ctx is done or Close is called, then
// returns api.ErrServerClosed. Serve takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return api.ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-stop:
		}
	}()

	logging.Info().Str("addr", ln.Addr().String()).Msg("server listening")

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return api.ErrServerClosed
			}
			if isTemporary(err) {
				if backoff == 0 {
					backoff = minAcceptBackoff
				} else if backoff *= 2; backoff > maxAcceptBackoff {
					backoff = maxAcceptBackoff
				}
				logging.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
				time.Sleep(backoff)
				continue
			}
			_ = s.Close()
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0
		s.serveConn(nc)
	}
}

func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

// serveConn reads requests from nc until it is closed or upgraded.
func (s *Server) serveConn(nc net.Conn) {
	log := logging.With().Str("remote", remoteAddr(nc)).Logger()
	if !s.track(nc) {
		_ = nc.Close()
		return
	}
	rd := httpwire.NewReader(nc, s.cfg.InitialBuffer, s.cfg.MaxRequestSize, s.pools.GetPool(s.cfg.InitialBuffer))
	upgraded := false
	defer func() {
		s.track(nil)
		rd.Release()
		if !upgraded {
			_ = nc.Close()
		}
	}()

	for {
		req, err := rd.Next()
		if err != nil {
			s.readFailed(nc, log, err)
			return
		}
		req.RemoteAddr = remoteAddr(nc)

		if protocol.IsUpgradeRequest(req.Header) && !s.callbacks().Empty() {
			upgraded = s.upgrade(nc, log, req, rd.Buffered())
			return
		}
		if !s.serveHTTP(nc, log, req) {
			return
		}
	}
}

// track records the connection Close must interrupt. It reports false once
// the server is closed.
func (s *Server) track(nc net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nc != nil && s.closed.Load() {
		return false
	}
	s.active = nc
	return true
}

func (s *Server) readFailed(nc net.Conn, log zerolog.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, io.EOF):
		return
	case errors.Is(err, httpwire.ErrRequestTooLarge):
		status = 413
	case errors.Is(err, httpwire.ErrMalformedRequest):
		status = 400
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		log.Debug().Err(err).Msg("connection closed mid-request")
		return
	default:
		log.Warn().Err(err).Msg("read failed")
		return
	}
	log.Warn().Err(err).Int("status", status).Msg("rejecting request")
	if werr := httpwire.WriteResponse(nc, httpwire.Plain(status), false); werr != nil {
		log.Debug().Err(werr).Msg("write failed")
		return
	}
	control.RecordHTTPRequest(status)
	lingerClose(nc)
}

// lingerClose half-closes nc and drains what the client is still sending, so
// the rejection is not lost to a reset caused by unread input.
func lingerClose(nc net.Conn) {
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.CloseWrite()
	_ = tc.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(tc, lingerDrainLimit))
}

// serveHTTP runs the handler and writes its response. It reports whether the
// connection stays open for another request.
func (s *Server) serveHTTP(nc net.Conn, log zerolog.Logger, req *api.Request) bool {
	keepAlive := req.KeepAlive()
	resp, err := s.invoke(req)
	if err != nil {
		status := api.StatusOf(err)
		log.Error().Err(err).Str("method", req.Method).Str("path", req.Path).Int("status", status).Msg("handler failed")
		resp, keepAlive = httpwire.Plain(status), false
	}
	if err := httpwire.WriteResponse(nc, resp, keepAlive); err != nil {
		log.Debug().Err(err).Msg("write failed")
		return false
	}
	control.RecordHTTPRequest(resp.StatusCode())
	log.Debug().Str("method", req.Method).Str("path", req.Path).Int("status", resp.StatusCode()).Msg("request served")
	return keepAlive
}

// invoke calls the current handler, turning a panic into an error. With no
// handler registered every request is answered with 404.
func (s *Server) invoke(req *api.Request) (resp *api.Response, err error) {
	h := s.currentHandler()
	if h == nil {
		return httpwire.Plain(404), nil
	}
	defer func() {
		if r := recover(); r != nil {
			control.RecordCallbackFailure("request")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.ServeRequest(req)
}

// upgrade completes the handshake and starts the session. It reports whether
// the session took ownership of nc.
func (s *Server) upgrade(nc net.Conn, log zerolog.Logger, req *api.Request, initial []byte) bool {
	accept, err := protocol.Handshake(req.Header)
	if err != nil {
		log.Warn().Err(err).Msg("websocket handshake rejected")
		if werr := httpwire.WriteResponse(nc, httpwire.Plain(400), false); werr == nil {
			control.RecordHTTPRequest(400)
		}
		return false
	}
	if err := protocol.WriteHandshakeResponse(nc, accept); err != nil {
		log.Debug().Err(err).Msg("handshake write failed")
		return false
	}

	conn := session.NewConn(nc, s.reg)
	id := conn.Register()
	control.WebSocketOpened()

	sess, err := session.New(conn, s.reg, initial, session.Config{
		MaxFramePayload: s.cfg.MaxFramePayload,
		MaxMessageSize:  s.cfg.MaxMessageSize,
		Pools:           s.pools,
	}, s.callbacks)
	if err != nil {
		log.Warn().Err(err).Uint64("conn_id", id).Msg("websocket session rejected")
		s.reg.Unregister(id)
		_ = conn.Close()
		control.WebSocketClosed()
		return true
	}

	log.Debug().Uint64("conn_id", id).Str("path", req.Path).Msg("websocket opened")
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		sess.Run()
	}()
	if s.closed.Load() {
		// Close may have swept the registry before this conn joined it
		_ = conn.Close()
	}
	return true
}

func remoteAddr(nc net.Conn) string {
	if a := nc.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
