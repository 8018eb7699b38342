package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Broadcaster delivers a lifecycle event to every socket in a session room.
// Satisfied by the websocket broadcaster; declared here to keep the lifecycle
// manager free of transport imports.
type Broadcaster interface {
	Broadcast(sessionID string, event any)
}

// Manager owns the session state machine. All transitions go through it so
// the open-session invariant and terminal-state rules hold everywhere.
type Manager struct {
	store       interfaces.SessionStore
	directory   interfaces.Directory
	broadcaster Broadcaster

	openSessions map[string]*types.Session // sessionID -> open session
	mu           sync.RWMutex
}

// NewManager creates a lifecycle manager. The broadcaster may be set later
// via SetBroadcaster to break the construction cycle with the transport.
func NewManager(store interfaces.SessionStore, directory interfaces.Directory) *Manager {
	return &Manager{
		store:        store,
		directory:    directory,
		openSessions: make(map[string]*types.Session),
	}
}

// SetBroadcaster wires the room fan-out used for lifecycle events.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// LoadOpenSessions warms the cache from the database at startup.
func (m *Manager) LoadOpenSessions(ctx context.Context) error {
	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range sessions {
		m.openSessions[session.ID] = session
	}

	log.Printf("Loaded %d open sessions", len(sessions))
	return nil
}

// Start creates an ACTIVE session for a schedule. The caller must be the
// schedule's assigned teacher, and no PENDING or ACTIVE session may already
// exist for the schedule.
func (m *Manager) Start(ctx context.Context, scheduleID, callerID, topic string) (*types.Session, error) {
	if len(topic) > 500 {
		return nil, types.ErrInvalidTopic
	}

	schedule, err := m.directory.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, interfaces.ErrScheduleNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to resolve schedule: %w", err)
	}

	if schedule.TeacherID != callerID {
		return nil, ErrNotOwner
	}

	session := &types.Session{
		ID:         uuid.New().String(),
		ScheduleID: schedule.ID,
		TeacherID:  schedule.TeacherID,
		ClassID:    schedule.ClassID,
		SubjectID:  schedule.SubjectID,
		Status:     types.SessionActive,
		StartedAt:  time.Now().UTC(),
		Topic:      topic,
	}

	// The store re-checks the invariant under its write lock; the race
	// between two concurrent starts resolves there.
	if err := m.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateSession) {
			return nil, ErrDuplicateActiveSession
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	m.openSessions[session.ID] = session
	m.mu.Unlock()

	m.broadcastLifecycle(ctx, session, types.EventSessionStarted)

	log.Printf("Session started: id=%s schedule=%s teacher=%s topic=%q",
		session.ID, session.ScheduleID, session.TeacherID, topic)
	return session, nil
}

// End transitions an ACTIVE session to ENDED. Only the owning teacher may
// end; terminal sessions are rejected with ErrInvalidTransition.
func (m *Manager) End(ctx context.Context, sessionID, callerID string) (*types.Session, error) {
	return m.finish(ctx, sessionID, callerID, types.SessionEnded, types.EventSessionEnded)
}

// Cancel transitions a PENDING or ACTIVE session to CANCELLED. Disallowed
// once the session is terminal.
func (m *Manager) Cancel(ctx context.Context, sessionID, callerID string) (*types.Session, error) {
	return m.finish(ctx, sessionID, callerID, types.SessionCancelled, types.EventSessionCancelled)
}

func (m *Manager) finish(ctx context.Context, sessionID, callerID, status, eventType string) (*types.Session, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsTerminal() {
		return nil, ErrInvalidTransition
	}
	if status == types.SessionEnded && session.Status != types.SessionActive {
		return nil, ErrInvalidTransition
	}
	if session.TeacherID != callerID {
		return nil, ErrNotOwner
	}

	now := time.Now().UTC()
	updated := *session
	updated.Status = status
	updated.EndedAt = &now

	if err := m.store.UpdateSessionStatus(ctx, &updated); err != nil {
		if errors.Is(err, interfaces.ErrSessionClosed) {
			// A concurrent transition won; the session is terminal now.
			m.mu.Lock()
			delete(m.openSessions, sessionID)
			m.mu.Unlock()
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("failed to persist session transition: %w", err)
	}

	m.mu.Lock()
	delete(m.openSessions, sessionID)
	m.mu.Unlock()

	m.broadcastLifecycle(ctx, &updated, eventType)

	log.Printf("Session %s: id=%s teacher=%s", status, updated.ID, updated.TeacherID)
	return &updated, nil
}

// GetSession retrieves a session, preferring the open-session cache.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	if session, ok := m.openSessions[sessionID]; ok {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// IsActive reports whether a session is currently ACTIVE. Cache-only; used
// on hot paths that tolerate a stale read within one transition.
func (m *Manager) IsActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.openSessions[sessionID]
	return ok && session.Status == types.SessionActive
}

// ListActiveFor returns active sessions scoped by the caller's role:
// students see their class, teachers see their own sessions, admins see all.
func (m *Manager) ListActiveFor(ctx context.Context, user *types.User) ([]*types.Session, error) {
	switch user.Role {
	case types.RoleStudent:
		if user.ClassID == "" {
			return nil, nil
		}
		return m.store.ListActiveSessionsByClass(ctx, user.ClassID)
	case types.RoleTeacher:
		return m.store.ListActiveSessionsByTeacher(ctx, user.ID)
	default:
		return m.store.ListActiveSessions(ctx)
	}
}

// broadcastLifecycle fans out a SESSION_* event enriched with display names.
// Failures are logged and local; persistence has already succeeded.
func (m *Manager) broadcastLifecycle(ctx context.Context, session *types.Session, eventType string) {
	if m.broadcaster == nil {
		return
	}

	event := &types.SessionEvent{
		Type:      eventType,
		SessionID: session.ID,
		TeacherID: session.TeacherID,
		Timestamp: time.Now().UTC(),
	}

	if teacher, err := m.directory.GetUser(ctx, session.TeacherID); err == nil {
		event.TeacherName = teacher.FullName
	}
	if name, err := m.directory.GetSubjectName(ctx, session.SubjectID); err == nil {
		event.SubjectName = name
	}
	if name, err := m.directory.GetClassName(ctx, session.ClassID); err == nil {
		event.ClassName = name
	}

	m.broadcaster.Broadcast(session.ID, event)
}
