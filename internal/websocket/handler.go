package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"liveclass/internal/auth"
	"liveclass/internal/gate"
	"liveclass/pkg/types"
)

// SessionResolver looks up sessions during the join handshake.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
}

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*types.User, error)
}

// AccessGate decides whether a user may join a session room.
type AccessGate interface {
	Authorize(ctx context.Context, user *types.User, session *types.Session) error
}

// WhiteboardLog persists whiteboard events before they are broadcast.
type WhiteboardLog interface {
	Append(ctx context.Context, sessionID, actorID, eventType string, payload json.RawMessage) (*types.WhiteboardEvent, error)
}

// AttendanceTracker records join and leave times for students.
type AttendanceTracker interface {
	OnJoin(ctx context.Context, sessionID, studentID string) (*types.AttendanceRecord, error)
	OnLeave(ctx context.Context, sessionID, studentID string)
}

// Config tunes the websocket transport.
type Config struct {
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	WriteBufferSize   int
	MessageBufferSize int
	MaxMessageSize    int64
	CheckOrigin       bool
}

// DefaultConfig returns transport defaults.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		WriteBufferSize:   1024,
		MessageBufferSize: 100,
		MaxMessageSize:    64 * 1024,
		CheckOrigin:       false,
	}
}

// Handler owns the websocket side of a session room: handshake, gatekeeping,
// the per-connection read loop, and cleanup on every exit path.
type Handler struct {
	config        Config
	upgrader      websocket.Upgrader
	registry      *Registry
	broadcaster   *Broadcaster
	sessions      SessionResolver
	authenticator Authenticator
	gate          AccessGate
	whiteboard    WhiteboardLog
	attendance    AttendanceTracker
	limiter       *RateLimiter
}

// NewHandler wires the transport together.
func NewHandler(config Config, registry *Registry, broadcaster *Broadcaster,
	sessions SessionResolver, authenticator Authenticator, accessGate AccessGate,
	whiteboardLog WhiteboardLog, attendance AttendanceTracker) *Handler {

	h := &Handler{
		config:        config,
		registry:      registry,
		broadcaster:   broadcaster,
		sessions:      sessions,
		authenticator: authenticator,
		gate:          accessGate,
		whiteboard:    whiteboardLog,
		attendance:    attendance,
		limiter:       NewRateLimiter(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.WriteBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			if config.CheckOrigin {
				return checkSameOrigin(r)
			}
			return true
		},
	}
	return h
}

// Close stops the handler's background housekeeping. Live connections are
// drained separately through the registry.
func (h *Handler) Close() {
	h.limiter.Stop()
}

func checkSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
}

// HandleSession serves GET /ws/sessions/{id}?token=... . The socket is
// upgraded first and rejections are delivered as application close codes
// (4001 unauthenticated, 4003 forbidden, 4004 unknown session), so clients
// always learn why they were refused.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: session=%s err=%v", sessionID, err)
		return
	}
	if h.config.MaxMessageSize > 0 {
		ws.SetReadLimit(h.config.MaxMessageSize)
	}

	conn := NewConnection(ws, h.config.MessageBufferSize)

	user, err := h.authenticator.Authenticate(r.Context(), token)
	if err != nil {
		reason := "Authentication required"
		if errors.Is(err, auth.ErrInactiveUser) {
			reason = "Account is inactive"
		}
		_ = conn.CloseWithCode(types.CloseUnauthenticated, reason)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		_ = conn.CloseWithCode(types.CloseSessionNotFound, "Session not found")
		return
	}
	if !session.IsOpen() {
		_ = conn.CloseWithCode(types.CloseForbidden, "Session has ended")
		return
	}

	if err := h.gate.Authorize(r.Context(), user, session); err != nil {
		if gate.IsDenial(err) {
			_ = conn.CloseWithCode(types.CloseForbidden, err.Error())
		} else {
			log.Printf("Gate check failed: session=%s user=%s err=%v", sessionID, user.ID, err)
			_ = conn.CloseWithCode(websocket.CloseInternalServerErr, "Internal error")
		}
		return
	}

	conn.SetIdentity(user.ID, user.Role, session.ID)
	if err := h.registry.Register(conn); err != nil {
		log.Printf("Registration failed: session=%s user=%s err=%v", sessionID, user.ID, err)
		_ = conn.Close()
		return
	}

	log.Printf("Connection joined: session=%s user=%s role=%s", session.ID, user.ID, user.Role)
	h.announceJoin(r.Context(), conn, user, session.ID)

	h.readLoop(conn, user, session.ID)
}

func (h *Handler) announceJoin(ctx context.Context, conn *Connection, user *types.User, sessionID string) {
	switch user.Role {
	case types.RoleStudent:
		if _, err := h.attendance.OnJoin(ctx, sessionID, user.ID); err != nil {
			log.Printf("Attendance record failed: session=%s student=%s err=%v",
				sessionID, user.ID, err)
		}
		h.broadcaster.BroadcastExcept(sessionID, &types.ParticipantEvent{
			Type:        types.EventStudentJoined,
			SessionID:   sessionID,
			StudentID:   user.ID,
			StudentName: user.FullName,
			Timestamp:   time.Now().UTC(),
		}, conn)

	case types.RoleTeacher:
		h.broadcaster.BroadcastExcept(sessionID, &types.TeacherPresenceEvent{
			Type:      types.EventTeacherPresence,
			SessionID: sessionID,
			TeacherID: user.ID,
			IsOnline:  true,
			Timestamp: time.Now().UTC(),
		}, conn)
	}
}

// readLoop reads client frames sequentially until the connection dies. The
// deferred cleanup runs on every exit path (close, read error, deadline,
// server drain), so a room never retains a dead socket.
func (h *Handler) readLoop(conn *Connection, user *types.User, sessionID string) {
	defer h.cleanup(conn, user, sessionID)

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.pingLoop(conn, stopPing)

	resetDeadline := func() {
		if h.config.ReadTimeout > 0 {
			_ = conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		}
	}
	resetDeadline()
	conn.conn.SetPongHandler(func(string) error {
		resetDeadline()
		return nil
	})

	ctx := context.Background()
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Connection error: session=%s user=%s err=%v", sessionID, user.ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		resetDeadline()
		h.dispatch(ctx, conn, user, sessionID, data)
	}
}

// pingLoop sends protocol-level pings so intermediaries keep the connection
// alive and dead peers are detected by the read deadline.
func (h *Handler) pingLoop(conn *Connection, stop <-chan struct{}) {
	if h.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// cleanup tears one connection down: leave the room, close the socket, and
// for students stamp the leave time and tell the room. Uses a fresh context
// because the request context is gone by the time a disconnect is observed.
func (h *Handler) cleanup(conn *Connection, user *types.User, sessionID string) {
	h.registry.Unregister(conn)
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch user.Role {
	case types.RoleStudent:
		h.attendance.OnLeave(ctx, sessionID, user.ID)
		h.broadcaster.Broadcast(sessionID, &types.ParticipantEvent{
			Type:        types.EventStudentLeft,
			SessionID:   sessionID,
			StudentID:   user.ID,
			StudentName: user.FullName,
			Timestamp:   time.Now().UTC(),
		})

	case types.RoleTeacher:
		h.broadcaster.Broadcast(sessionID, &types.TeacherPresenceEvent{
			Type:      types.EventTeacherPresence,
			SessionID: sessionID,
			TeacherID: user.ID,
			IsOnline:  false,
			Timestamp: time.Now().UTC(),
		})
	}

	log.Printf("Connection left: session=%s user=%s role=%s", sessionID, user.ID, user.Role)
}
