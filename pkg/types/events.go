package types

import (
	"encoding/json"
	"time"
)

// Wire event types. Every frame carries a discriminating "type" field.
const (
	EventSessionStarted   = "SESSION_STARTED"
	EventSessionEnded     = "SESSION_ENDED"
	EventSessionCancelled = "SESSION_CANCELLED"

	EventStudentJoined   = "STUDENT_JOINED"
	EventStudentLeft     = "STUDENT_LEFT"
	EventTeacherPresence = "TEACHER_PRESENCE"

	EventWhiteboardDraw  = "WHITEBOARD_DRAW"
	EventWhiteboardErase = "WHITEBOARD_ERASE"
	EventWhiteboardClear = "WHITEBOARD_CLEAR"

	EventError = "ERROR"
	EventPing  = "PING"
	EventPong  = "PONG"
)

// Close codes sent when the handshake is rejected.
const (
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
	CloseSessionNotFound = 4004
)

// Error codes carried by ERROR events (soft, sender-only errors).
const (
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeSessionNotActive = "SESSION_NOT_ACTIVE"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// SessionEvent announces a lifecycle transition to the room.
type SessionEvent struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	TeacherID   string    `json:"teacher_id"`
	TeacherName string    `json:"teacher_name,omitempty"`
	SubjectName string    `json:"subject_name,omitempty"`
	ClassName   string    `json:"class_name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ParticipantEvent announces a student joining or leaving the room.
type ParticipantEvent struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TeacherPresenceEvent relays the teacher heartbeat to the room.
type TeacherPresenceEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	TeacherID string    `json:"teacher_id"`
	IsOnline  bool      `json:"is_online"`
	Timestamp time.Time `json:"timestamp"`
}

// WhiteboardBroadcast is the live fan-out form of a persisted whiteboard
// event. Sent only after the row is committed (persist-then-broadcast).
type WhiteboardBroadcast struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	CreatedBy string          `json:"created_by"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorEvent reports a soft error to the offending sender only.
type ErrorEvent struct {
	Type         string    `json:"type"`
	SessionID    string    `json:"session_id,omitempty"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
}

// HeartbeatEvent is the PING/PONG frame; no payload beyond the timestamp.
type HeartbeatEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorEvent builds a sender-only ERROR event.
func NewErrorEvent(sessionID, code, message string) *ErrorEvent {
	return &ErrorEvent{
		Type:         EventError,
		SessionID:    sessionID,
		ErrorCode:    code,
		ErrorMessage: message,
		Timestamp:    time.Now().UTC(),
	}
}

// DrawPayload is the body of a WHITEBOARD_DRAW event.
type DrawPayload struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// ErasePayload is the body of a WHITEBOARD_ERASE event.
type ErasePayload struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

// Inbound is a client-to-server message decoded at the boundary. Exactly one
// variant per message kind; unknown or malformed frames never reach handlers.
type Inbound interface {
	inbound()
}

// PingMessage is a client heartbeat.
type PingMessage struct{}

// PresenceMessage is the teacher presence heartbeat.
type PresenceMessage struct{}

// DrawMessage carries a validated DRAW payload.
type DrawMessage struct {
	Payload DrawPayload
}

// EraseMessage carries a validated ERASE payload.
type EraseMessage struct {
	Payload ErasePayload
}

// ClearMessage resets the canvas for replaying clients.
type ClearMessage struct{}

func (PingMessage) inbound()     {}
func (PresenceMessage) inbound() {}
func (DrawMessage) inbound()     {}
func (EraseMessage) inbound()    {}
func (ClearMessage) inbound()    {}

// inboundEnvelope is the raw wire form before variant decoding.
type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeInbound parses and validates a client frame into its typed variant.
func DecodeInbound(data []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformedMessage
	}

	switch env.Type {
	case EventPing:
		return PingMessage{}, nil

	case EventTeacherPresence:
		return PresenceMessage{}, nil

	case EventWhiteboardDraw:
		var p DrawPayload
		if len(env.Payload) == 0 {
			return nil, ErrInvalidPayload
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, ErrInvalidPayload
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return DrawMessage{Payload: p}, nil

	case EventWhiteboardErase:
		var p ErasePayload
		if len(env.Payload) == 0 {
			return nil, ErrInvalidPayload
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, ErrInvalidPayload
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return EraseMessage{Payload: p}, nil

	case EventWhiteboardClear:
		return ClearMessage{}, nil

	default:
		return nil, ErrUnknownMessageType
	}
}

// WhiteboardType maps an inbound whiteboard message to its stored event type.
// Returns "" for non-whiteboard messages.
func WhiteboardType(msg Inbound) string {
	switch msg.(type) {
	case DrawMessage:
		return WhiteboardDraw
	case EraseMessage:
		return WhiteboardErase
	case ClearMessage:
		return WhiteboardClear
	default:
		return ""
	}
}
