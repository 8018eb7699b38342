package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a websocket with a single writer goroutine. All writes go
// through writeCh, so concurrent broadcasters never race on the socket.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	userID    string
	role      string
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// writeWait bounds how long a single frame may take; a peer slower than this
// is treated as dead so fan-out never stalls on it.
const writeWait = 5 * time.Second

// NewConnection wraps an upgraded websocket and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeCh is never closed. Concurrent senders race WriteJSON against Close,
// so shutdown is signaled through ctx only; queued frames after cancel are
// simply never drained. The deferred cancel makes senders fail fast once
// the socket has errored out.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a frame for the writer goroutine. Fails fast when the
// connection is closed or the peer cannot drain its buffer in time.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeWait):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// CloseWithCode sends a close frame with an application close code (4001,
// 4003, 4004) before tearing the connection down. Best-effort: the frame may
// not reach a peer that is already gone.
func (c *Connection) CloseWithCode(code int, reason string) error {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return c.Close()
}

// Close tears the connection down exactly once. Safe to call from any
// goroutine and on any exit path.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity binds the authenticated user to the connection. Called once,
// after the gate admits the user and before registration.
func (c *Connection) SetIdentity(userID, role, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.role = role
	c.sessionID = sessionID
}

// HasIdentity reports whether an identity has been bound.
func (c *Connection) HasIdentity() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID != ""
}

// UserID returns the bound user ID.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Role returns the bound role.
func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// SessionID returns the bound session ID.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}
