// internal/handlers/conn_table.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
)

// connTable tracks live arena connections by id.
type connTable struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*ArenaConn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[uuid.UUID]*ArenaConn)}
}

func (t *connTable) add(conn *ArenaConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[conn.ID] = conn
}

func (t *connTable) get(id uuid.UUID) (*ArenaConn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, ok := t.conns[id]
	return conn, ok
}

func (t *connTable) remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}
