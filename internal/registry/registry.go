// File: internal/registry/registry.go
// Package registry tracks live WebSocket connections and the rooms they joined.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One coarse mutex guards all state. Broadcasts snapshot the recipients under
// the lock and write outside it, so a slow peer stalls only the broadcasting
// goroutine, never the registry.

package registry

import (
	"sync"

	"github.com/momentics/hioload-serve/api"
)

// Peer is the write side of a connection as the registry sees it.
type Peer interface {
	WriteMessage(opcode byte, data []byte) error
}

// DeliveryError reports a failed write to one peer during a broadcast.
type DeliveryError struct {
	ID  uint64
	Err error
}

type entry struct {
	peer  Peer
	rooms []string
}

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*entry
	rooms  map[string][]uint64

	// OnDeliveryError, if set, is called for each failed broadcast write.
	OnDeliveryError func(DeliveryError)
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		conns: make(map[uint64]*entry),
		rooms: make(map[string][]uint64),
	}
}

// Register assigns the next id to p. Ids start at 1 and are never reused.
func (r *Registry) Register(p Peer) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.conns[r.nextID] = &entry{peer: p}
	return r.nextID
}

// Unregister removes id from every room and forgets it.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveAllLocked(id)
	delete(r.conns, id)
}

// Get returns the peer registered under id.
func (r *Registry) Get(id uint64) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Len is the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// IDs returns live connection ids in no particular order.
func (r *Registry) IDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Join adds id to room. Joining twice is a no-op. Rooms are created lazily.
func (r *Registry) Join(id uint64, room string) error {
	if room == "" {
		return api.ErrInvalidRoom
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return api.ErrConnNotFound
	}
	if contains(e.rooms, room) {
		return nil
	}
	e.rooms = append(e.rooms, room)
	r.rooms[room] = append(r.rooms[room], id)
	return nil
}

// Leave removes id from room. Leaving a room not joined is a no-op.
// Emptied rooms keep existing.
func (r *Registry) Leave(id uint64, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return api.ErrConnNotFound
	}
	e.rooms = removeString(e.rooms, room)
	if members, ok := r.rooms[room]; ok {
		r.rooms[room] = removeID(members, id)
	}
	return nil
}

// LeaveAll removes id from every room it joined.
func (r *Registry) LeaveAll(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveAllLocked(id)
}

func (r *Registry) leaveAllLocked(id uint64) {
	e, ok := r.conns[id]
	if !ok {
		return
	}
	for _, room := range e.rooms {
		r.rooms[room] = removeID(r.rooms[room], id)
	}
	e.rooms = nil
}

// Rooms lists the rooms id joined, in join order.
func (r *Registry) Rooms(id uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	return append([]string(nil), e.rooms...)
}

// Members lists room members in join order. Unknown rooms are empty.
func (r *Registry) Members(room string) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.rooms[room]...)
}

// RoomNames lists every room ever joined, including empty ones.
func (r *Registry) RoomNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}

type target struct {
	id   uint64
	peer Peer
}

// Broadcast writes data to every current member of room except excludeID
// (0 excludes nobody). It returns the number of successful deliveries.
func (r *Registry) Broadcast(room string, opcode byte, data []byte, excludeID uint64) int {
	r.mu.Lock()
	members := r.rooms[room]
	targets := make([]target, 0, len(members))
	for _, id := range members {
		if id == excludeID {
			continue
		}
		if e, ok := r.conns[id]; ok {
			targets = append(targets, target{id, e.peer})
		}
	}
	r.mu.Unlock()
	return r.deliver(targets, opcode, data)
}

// BroadcastAll writes data to every live connection except excludeID.
func (r *Registry) BroadcastAll(opcode byte, data []byte, excludeID uint64) int {
	r.mu.Lock()
	targets := make([]target, 0, len(r.conns))
	for id, e := range r.conns {
		if id != excludeID {
			targets = append(targets, target{id, e.peer})
		}
	}
	r.mu.Unlock()
	return r.deliver(targets, opcode, data)
}

func (r *Registry) deliver(targets []target, opcode byte, data []byte) int {
	sent := 0
	for _, t := range targets {
		if err := t.peer.WriteMessage(opcode, data); err != nil {
			if r.OnDeliveryError != nil {
				r.OnDeliveryError(DeliveryError{ID: t.id, Err: err})
			}
			continue
		}
		sent++
	}
	return sent
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

func removeID(s []uint64, v uint64) []uint64 {
	for i, x := range s {
		if x == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}
