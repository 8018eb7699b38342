package whiteboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// SessionResolver looks up sessions for permission checks. Satisfied by the
// lifecycle manager.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
}

// Service is the append-only whiteboard log. Append persists before the
// caller broadcasts; that ordering is the contract that makes a State call
// issued right after a live event include that event.
type Service struct {
	store    interfaces.WhiteboardStore
	sessions SessionResolver
}

// NewService creates the whiteboard service.
func NewService(store interfaces.WhiteboardStore, sessions SessionResolver) *Service {
	return &Service{store: store, sessions: sessions}
}

// Append validates permissions and persists one event. Only the owning
// teacher of an ACTIVE session may append; violations are soft errors.
// The returned event carries the server-assigned id and timestamp.
func (s *Service) Append(ctx context.Context, sessionID, actorID, eventType string, payload json.RawMessage) (*types.WhiteboardEvent, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.TeacherID != actorID {
		return nil, ErrPermissionDenied
	}
	if session.Status != types.SessionActive {
		return nil, ErrSessionNotActive
	}

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if err := types.ValidateStoredPayload(eventType, payload); err != nil {
		return nil, err
	}

	event := &types.WhiteboardEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		CreatedBy: actorID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.AppendWhiteboardEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to persist whiteboard event: %w", err)
	}
	return event, nil
}

// State returns the full ordered history for canvas reconstruction. CLEAR
// rows are returned like any other event; replaying clients reset the canvas
// and continue.
func (s *Service) State(ctx context.Context, sessionID string) ([]*types.WhiteboardEvent, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListWhiteboardEvents(ctx, sessionID)
}
