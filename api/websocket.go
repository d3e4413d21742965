// File: api/websocket.go
// Author: momentics <momentics@gmail.com>
//
// Connection handle and server-side operations available to callbacks.

package api

// Conn is a live WebSocket connection as seen by callbacks.
type Conn interface {
	// ID is stable, starts at 1 and is never reused within a server.
	ID() uint64
	// Send writes one text frame.
	Send(data []byte) error
	// SendBinary writes one binary frame.
	SendBinary(data []byte) error
	// Rooms lists joined room names in join order.
	Rooms() []string
	RemoteAddr() string
}

// Broadcaster is the set of operations callbacks may invoke on the server.
// An excludeID of 0 excludes nobody.
type Broadcaster interface {
	Send(id uint64, data []byte) error
	Broadcast(data []byte, excludeID uint64) int
	Join(id uint64, room string) error
	Leave(id uint64, room string) error
	BroadcastRoom(room string, data []byte, excludeID uint64) int
}
