package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"liveclass/internal/whiteboard"
	"liveclass/pkg/types"
)

// dispatch routes one decoded client frame. Frames are handled sequentially
// per connection, so a sender's events reach the store and the room in the
// order they were sent. Protocol violations are soft: an ERROR frame goes
// back to the sender only and the connection stays up.
func (h *Handler) dispatch(ctx context.Context, conn *Connection, user *types.User, sessionID string, data []byte) {
	msg, err := types.DecodeInbound(data)
	if err != nil {
		h.sendError(conn, sessionID, types.ErrCodeInvalidMessage, err.Error())
		return
	}

	switch m := msg.(type) {
	case types.PingMessage:
		_ = h.broadcaster.SendTo(conn, &types.HeartbeatEvent{
			Type:      types.EventPong,
			Timestamp: time.Now().UTC(),
		})

	case types.PresenceMessage:
		// Presence heartbeats from non-teachers are dropped silently.
		if user.Role != types.RoleTeacher {
			return
		}
		h.broadcaster.BroadcastExcept(sessionID, &types.TeacherPresenceEvent{
			Type:      types.EventTeacherPresence,
			SessionID: sessionID,
			TeacherID: user.ID,
			IsOnline:  true,
			Timestamp: time.Now().UTC(),
		}, conn)

	case types.DrawMessage:
		payload, err := json.Marshal(m.Payload)
		if err != nil {
			h.sendError(conn, sessionID, types.ErrCodeInvalidMessage, "invalid payload")
			return
		}
		h.handleWhiteboard(ctx, conn, user, sessionID, types.WhiteboardType(msg), payload)

	case types.EraseMessage:
		payload, err := json.Marshal(m.Payload)
		if err != nil {
			h.sendError(conn, sessionID, types.ErrCodeInvalidMessage, "invalid payload")
			return
		}
		h.handleWhiteboard(ctx, conn, user, sessionID, types.WhiteboardType(msg), payload)

	case types.ClearMessage:
		h.handleWhiteboard(ctx, conn, user, sessionID, types.WhiteboardType(msg), nil)
	}
}

// handleWhiteboard persists one whiteboard event and, only on success, fans
// it out to everyone else in the room. The store is the source of truth: a
// frame that failed to persist is never broadcast.
func (h *Handler) handleWhiteboard(ctx context.Context, conn *Connection, user *types.User, sessionID, eventType string, payload json.RawMessage) {
	if user.Role != types.RoleTeacher {
		h.sendError(conn, sessionID, types.ErrCodePermissionDenied, "Only teachers can draw on the whiteboard")
		return
	}
	if !h.limiter.Allow(user.ID) {
		h.sendError(conn, sessionID, types.ErrCodeRateLimited, "Too many whiteboard events, slow down")
		return
	}

	event, err := h.whiteboard.Append(ctx, sessionID, user.ID, eventType, payload)
	if err != nil {
		switch {
		case errors.Is(err, whiteboard.ErrPermissionDenied):
			h.sendError(conn, sessionID, types.ErrCodePermissionDenied, "Only the session teacher can draw")
		case errors.Is(err, whiteboard.ErrSessionNotActive):
			h.sendError(conn, sessionID, types.ErrCodeSessionNotActive, "Session is not active")
		default:
			log.Printf("Whiteboard append failed: session=%s user=%s type=%s err=%v",
				sessionID, user.ID, eventType, err)
			h.sendError(conn, sessionID, types.ErrCodeInternal, "Failed to save whiteboard event")
		}
		return
	}

	wireType := "WHITEBOARD_" + event.Type
	h.broadcaster.BroadcastExcept(sessionID, &types.WhiteboardBroadcast{
		Type:      wireType,
		SessionID: sessionID,
		CreatedBy: event.CreatedBy,
		Payload:   event.Payload,
		Timestamp: event.CreatedAt,
	}, conn)
}

func (h *Handler) sendError(conn *Connection, sessionID, code, message string) {
	if err := h.broadcaster.SendTo(conn, types.NewErrorEvent(sessionID, code, message)); err != nil {
		log.Printf("Error frame delivery failed: session=%s code=%s err=%v", sessionID, code, err)
	}
}
