// File: server/broadcast.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operations callbacks invoke on the server. All messages go out as text frames.

package server

import (
	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/protocol"
)

// Send writes data to one connection.
func (s *Server) Send(id uint64, data []byte) error {
	p, ok := s.reg.Get(id)
	if !ok {
		return api.ErrConnNotFound
	}
	return p.WriteMessage(protocol.OpcodeText, data)
}

// Broadcast writes data to every live connection except excludeID and
// returns the number of deliveries.
func (s *Server) Broadcast(data []byte, excludeID uint64) int {
	n := s.reg.BroadcastAll(protocol.OpcodeText, data, excludeID)
	control.RecordBroadcast(n)
	return n
}

// Join adds id to room.
func (s *Server) Join(id uint64, room string) error {
	return s.reg.Join(id, room)
}

// Leave removes id from room.
func (s *Server) Leave(id uint64, room string) error {
	return s.reg.Leave(id, room)
}

// BroadcastRoom writes data to room members except excludeID.
func (s *Server) BroadcastRoom(room string, data []byte, excludeID uint64) int {
	n := s.reg.Broadcast(room, protocol.OpcodeText, data, excludeID)
	control.RecordBroadcast(n)
	return n
}

// Rooms lists the rooms id joined.
func (s *Server) Rooms(id uint64) []string {
	return s.reg.Rooms(id)
}
