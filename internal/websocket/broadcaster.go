package websocket

import (
	"log"
)

// Broadcaster fans an event out to a session room. A delivery failure to one
// recipient never aborts delivery to the rest: the failing socket is treated
// as disconnected, removed from the registry, and closed.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over the registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast delivers an event to every socket in the room.
func (b *Broadcaster) Broadcast(sessionID string, event any) {
	b.BroadcastExcept(sessionID, event, nil)
}

// BroadcastExcept delivers an event to every socket in the room except the
// excluded sender.
func (b *Broadcaster) BroadcastExcept(sessionID string, event any, exclude *Connection) {
	for _, conn := range b.registry.Connections(sessionID) {
		if conn == exclude {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			// Dead or stalled peer: drop it and keep fanning out.
			log.Printf("Broadcast delivery failed: session=%s user=%s err=%v",
				sessionID, conn.UserID(), err)
			b.registry.Unregister(conn)
			_ = conn.Close()
		}
	}
}

// SendTo delivers an event to a single connection (ERROR and PONG frames).
func (b *Broadcaster) SendTo(conn *Connection, event any) error {
	return conn.WriteJSON(event)
}
