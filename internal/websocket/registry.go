package websocket

import (
	"log"
	"sync"
)

// Registry is the room directory: session -> sockets and socket -> (user,
// session). It is the only shared mutable state in the transport and every
// mutation happens under one mutex, so no caller ever observes a
// partially-updated room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Connection]struct{} // sessionID -> room members
	conns map[*Connection]string              // connection -> sessionID
}

// NewRegistry creates an empty registry. It is an explicitly constructed,
// injected singleton with a defined shutdown path (Drain), not a package
// global.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[*Connection]struct{}),
		conns: make(map[*Connection]string),
	}
}

// Register adds a connection to its session room. The room entry is created
// lazily on first join.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.HasIdentity() {
		return ErrNoIdentity
	}

	sessionID := conn.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[sessionID]
	if !ok {
		room = make(map[*Connection]struct{})
		r.rooms[sessionID] = room
	}
	room[conn] = struct{}{}
	r.conns[conn] = sessionID

	return nil
}

// Unregister removes a connection. Idempotent; when the room becomes empty
// its entry is removed as well.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.conns[conn]
	if !ok {
		return
	}
	delete(r.conns, conn)

	if room, ok := r.rooms[sessionID]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(r.rooms, sessionID)
			log.Printf("Room closed: session=%s", sessionID)
		}
	}
}

// Connections returns a snapshot of a room's members, safe to iterate
// without holding the registry lock.
func (r *Registry) Connections(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[sessionID]
	connections := make([]*Connection, 0, len(room))
	for conn := range room {
		connections = append(connections, conn)
	}
	return connections
}

// CountInSession returns the number of sockets currently in a room.
func (r *Registry) CountInSession(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[sessionID])
}

// IsUserConnected reports whether a user has a socket in the room.
func (r *Registry) IsUserConnected(sessionID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for conn := range r.rooms[sessionID] {
		if conn.UserID() == userID {
			return true
		}
	}
	return false
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.conns),
		"active_rooms":      len(r.rooms),
	}
}

// Drain closes every registered connection. Called on shutdown so no
// connection task is left waiting on a dead server. Read loops observe the
// close and run their own cleanup, which makes Unregister a no-op by then.
func (r *Registry) Drain() {
	r.mu.Lock()
	var all []*Connection
	for conn := range r.conns {
		all = append(all, conn)
	}
	r.mu.Unlock()

	for _, conn := range all {
		_ = conn.Close()
	}
	log.Printf("Registry drained: %d connections closed", len(all))
}
