// File: internal/session/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/internal/registry"
	"github.com/momentics/hioload-serve/protocol"
)

// Conn is a server-side WebSocket connection. Writes from any goroutine are
// serialized so frames never interleave on the wire.
type Conn struct {
	id     uint64
	nc     net.Conn
	reg    *registry.Registry
	remote string

	wmu    sync.Mutex
	closed atomic.Bool
}

var _ api.Conn = (*Conn)(nil)
var _ registry.Peer = (*Conn)(nil)

// NewConn wraps nc. Call Register before handing it to callbacks.
func NewConn(nc net.Conn, reg *registry.Registry) *Conn {
	c := &Conn{nc: nc, reg: reg}
	if addr := nc.RemoteAddr(); addr != nil {
		c.remote = addr.String()
	}
	return c
}

// Register adds the connection to the registry and records its id.
func (c *Conn) Register() uint64 {
	c.id = c.reg.Register(c)
	return c.id
}

func (c *Conn) ID() uint64         { return c.id }
func (c *Conn) RemoteAddr() string { return c.remote }

// Rooms lists the rooms this connection joined.
func (c *Conn) Rooms() []string { return c.reg.Rooms(c.id) }

// Send writes a text frame.
func (c *Conn) Send(data []byte) error {
	return c.WriteMessage(protocol.OpcodeText, data)
}

// SendBinary writes a binary frame.
func (c *Conn) SendBinary(data []byte) error {
	return c.WriteMessage(protocol.OpcodeBinary, data)
}

// WriteMessage writes one unfragmented, unmasked frame. It blocks until the
// kernel accepts the bytes; there is no write deadline.
func (c *Conn) WriteMessage(opcode byte, data []byte) error {
	if c.closed.Load() {
		return api.ErrConnClosed
	}
	frame := protocol.Encode(data, opcode, true)
	c.wmu.Lock()
	_, err := c.nc.Write(frame)
	c.wmu.Unlock()
	if err != nil {
		return err
	}
	control.RecordFrameOut(opcode)
	return nil
}

// Close closes the socket once. A session blocked in Read then exits.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.nc.Close()
}
