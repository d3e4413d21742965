// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket session loop: accumulation buffer, cursor drain, fragment
// reassembly and control frame handling.

package session

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/internal/logging"
	"github.com/momentics/hioload-serve/internal/registry"
	"github.com/momentics/hioload-serve/pool"
	"github.com/momentics/hioload-serve/protocol"
)

// ErrMessageTooLarge means a reassembled message outgrew Config.MaxMessageSize.
var ErrMessageTooLarge = errors.New("websocket message exceeds maximum size")

// Config bounds a session's memory use.
type Config struct {
	// MaxFramePayload is the unmask scratch bound; larger frames end the session.
	MaxFramePayload int
	// MaxMessageSize caps a reassembled fragmented message.
	MaxMessageSize int
	// Pools supplies the read buffer and scratch area. Nil means pool.Default().
	Pools *pool.Manager
}

func (c Config) withDefaults() Config {
	if c.MaxFramePayload <= 0 {
		c.MaxFramePayload = protocol.DefaultMaxFramePayload
	}
	if c.MaxMessageSize < c.MaxFramePayload {
		c.MaxMessageSize = c.MaxFramePayload
	}
	if c.Pools == nil {
		c.Pools = pool.Default()
	}
	return c
}

// CallbackSource returns the callbacks currently registered on the server.
// It is consulted for every event so a new registration takes effect on
// sessions that are already running.
type CallbackSource func() api.WebSocketCallbacks

// Session runs one connection. It is not safe for concurrent use; Run is
// meant to be the body of the connection's goroutine.
type Session struct {
	conn      *Conn
	reg       *registry.Registry
	callbacks CallbackSource
	cfg       Config
	log       zerolog.Logger

	bufPool     *pool.BytePool
	scratchPool *pool.BytePool
	buf         []byte
	scratch     []byte
	n           int
	dec         *protocol.Decoder

	fragments *queue.Queue
	fragOp    byte
	fragSize  int
}

// New prepares a session for a registered conn. initial holds bytes the
// acceptor read past the handshake request; they are decoded first.
func New(conn *Conn, reg *registry.Registry, initial []byte, cfg Config, cb CallbackSource) (*Session, error) {
	cfg = cfg.withDefaults()
	s := &Session{
		conn:        conn,
		reg:         reg,
		callbacks:   cb,
		cfg:         cfg,
		log:         logging.With().Uint64("conn_id", conn.ID()).Str("remote", conn.RemoteAddr()).Logger(),
		bufPool:     cfg.Pools.GetPool(cfg.MaxFramePayload + protocol.MaxFrameHeaderLen),
		scratchPool: cfg.Pools.GetPool(cfg.MaxFramePayload),
		fragments:   queue.New(),
	}
	if len(initial) > s.bufPool.Size() {
		return nil, fmt.Errorf("%w: %d bytes buffered after handshake", protocol.ErrPayloadTooLarge, len(initial))
	}
	s.buf = s.bufPool.Get()
	s.scratch = s.scratchPool.Get()
	s.dec = protocol.NewDecoderWithScratch(s.scratch)
	s.n = copy(s.buf, initial)
	return s, nil
}

// Run fires the open callback, then loops until the peer closes, the socket
// fails or a protocol violation occurs. It never panics on bad input.
func (s *Session) Run() {
	defer s.finish()

	s.invoke("open", func(cb api.WebSocketCallbacks) {
		if cb.Open != nil {
			cb.Open(s.conn)
		}
	})

	var readErr error
	for {
		cursor := 0
		for cursor < s.n {
			f, err := s.dec.Decode(s.buf[cursor:s.n])
			if errors.Is(err, protocol.ErrNeedMoreData) {
				break
			}
			if err != nil {
				s.fail(err)
				return
			}
			cursor += f.Consumed
			control.RecordFrameIn(f.Opcode)

			done, err := s.handle(f)
			if err != nil {
				s.fail(err)
				return
			}
			if done {
				return
			}
		}
		// keep the undecoded tail at the start of the buffer
		s.n = copy(s.buf, s.buf[cursor:s.n])

		if readErr != nil {
			s.readFailed(readErr)
			return
		}
		if s.n == len(s.buf) {
			s.fail(protocol.ErrPayloadTooLarge)
			return
		}
		var m int
		m, readErr = s.conn.nc.Read(s.buf[s.n:])
		s.n += m
	}
}

// handle processes one decoded frame. done reports a clean close.
func (s *Session) handle(f protocol.Frame) (done bool, err error) {
	switch f.Opcode {
	case protocol.OpcodePing:
		if err := s.conn.WriteMessage(protocol.OpcodePong, f.Payload); err != nil {
			return false, err
		}
		return false, nil

	case protocol.OpcodePong:
		return false, nil

	case protocol.OpcodeClose:
		code, _, err := protocol.ParseClosePayload(f.Payload)
		if err != nil {
			return false, err
		}
		var reply []byte
		if code != protocol.CloseNoStatusRcvd {
			reply = protocol.ClosePayload(code, "")
		}
		// echo best-effort; the peer may already be gone
		_ = s.conn.WriteMessage(protocol.OpcodeClose, reply)
		s.log.Debug().Uint16("code", code).Msg("websocket close frame")
		return true, nil

	case protocol.OpcodeText, protocol.OpcodeBinary:
		if s.fragOp != 0 {
			return false, fmt.Errorf("%w: new data frame inside fragmented message", protocol.ErrProtocol)
		}
		if f.Fin {
			s.dispatch(f.Opcode, append([]byte(nil), f.Payload...))
			return false, nil
		}
		s.fragOp = f.Opcode
		return false, s.addFragment(f.Payload)

	case protocol.OpcodeContinuation:
		if s.fragOp == 0 {
			return false, fmt.Errorf("%w: continuation without a started message", protocol.ErrProtocol)
		}
		if err := s.addFragment(f.Payload); err != nil {
			return false, err
		}
		if f.Fin {
			op, msg := s.fragOp, s.reassemble()
			s.dispatch(op, msg)
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: unexpected opcode 0x%x", protocol.ErrProtocol, f.Opcode)
}

func (s *Session) addFragment(p []byte) error {
	s.fragSize += len(p)
	if s.fragSize > s.cfg.MaxMessageSize {
		return ErrMessageTooLarge
	}
	s.fragments.Add(append([]byte(nil), p...))
	return nil
}

// reassemble drains the fragment queue into one payload and resets state.
func (s *Session) reassemble() []byte {
	msg := make([]byte, 0, s.fragSize)
	for s.fragments.Length() > 0 {
		msg = append(msg, s.fragments.Remove().([]byte)...)
	}
	s.fragOp, s.fragSize = 0, 0
	return msg
}

func (s *Session) dispatch(opcode byte, data []byte) {
	msg := api.Message{Binary: opcode == protocol.OpcodeBinary, Data: data}
	s.invoke("message", func(cb api.WebSocketCallbacks) {
		if cb.Message != nil {
			cb.Message(s.conn, msg)
		}
	})
}

// invoke runs fn with the current callbacks, swallowing and logging panics so
// one faulty callback cannot end the session or the process.
func (s *Session) invoke(kind string, fn func(api.WebSocketCallbacks)) {
	defer func() {
		if r := recover(); r != nil {
			control.RecordCallbackFailure(kind)
			s.log.Error().Str("callback", kind).Interface("panic", r).Msg("websocket callback failed")
		}
	}()
	fn(s.callbacks())
}

// fail ends the session after a decode or protocol error, telling the peer why.
func (s *Session) fail(err error) {
	code, reason := uint16(protocol.CloseProtocolError), "protocol"
	switch {
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		code, reason = protocol.CloseMessageTooBig, "payload_too_large"
	case errors.Is(err, ErrMessageTooLarge):
		code, reason = protocol.CloseMessageTooBig, "message_too_large"
	case !errors.Is(err, protocol.ErrProtocol):
		reason = "transport"
	}
	control.RecordProtocolError(reason)
	s.log.Warn().Err(err).Str("reason", reason).Msg("websocket session aborted")
	if reason != "transport" {
		_ = s.conn.WriteMessage(protocol.OpcodeClose, protocol.ClosePayload(code, ""))
	}
}

func (s *Session) readFailed(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		s.log.Debug().Msg("websocket peer closed")
		return
	}
	control.RecordProtocolError("transport")
	s.log.Warn().Err(err).Msg("websocket read failed")
}

// finish fires the close callback, then drops the connection from every room.
func (s *Session) finish() {
	s.invoke("close", func(cb api.WebSocketCallbacks) {
		if cb.Close != nil {
			cb.Close(s.conn)
		}
	})
	s.reg.Unregister(s.conn.ID())
	_ = s.conn.Close()
	control.WebSocketClosed()

	s.bufPool.Put(s.buf)
	s.scratchPool.Put(s.scratch)
	s.buf, s.scratch = nil, nil
}
