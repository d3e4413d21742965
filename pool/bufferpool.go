// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// Size-segmented BytePool manager. Components that agree on a buffer size
// share one pool instead of fragmenting allocations.

package pool

import "sync"

// Manager provides one BytePool per buffer size.
type Manager struct {
	mu    sync.RWMutex
	pools map[int]*BytePool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{pools: make(map[int]*BytePool)}
}

// GetPool obtains or creates the pool for size.
func (m *Manager) GetPool(size int) *BytePool {
	m.mu.RLock()
	p, ok := m.pools[size]
	m.mu.RUnlock()
	if ok {
		return p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[size]; ok {
		return p
	}
	p = NewBytePool(size)
	m.pools[size] = p
	return p
}

var (
	defaultOnce sync.Once
	defaultMgr  *Manager
)

// Default returns the process-wide manager.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultMgr = NewManager()
	})
	return defaultMgr
}
