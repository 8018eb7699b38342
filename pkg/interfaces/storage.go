package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// SessionStore persists lesson sessions. Writes are short, independently
// committed transactions; the duplicate-open-session invariant is enforced
// here as well as in the lifecycle manager.
type SessionStore interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	// UpdateSessionStatus persists a lifecycle transition (status + ended_at).
	// The write commits only while the row is still PENDING or ACTIVE;
	// ErrSessionClosed is returned once the row is terminal, so concurrent
	// transitions resolve to exactly one winner.
	UpdateSessionStatus(ctx context.Context, session *types.Session) error
	// FindOpenSession returns the PENDING or ACTIVE session for a schedule,
	// or ErrSessionNotFound when none exists.
	FindOpenSession(ctx context.Context, scheduleID string) (*types.Session, error)
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
	ListActiveSessionsByClass(ctx context.Context, classID string) ([]*types.Session, error)
	ListActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]*types.Session, error)
}

// WhiteboardStore persists the append-only drawing log.
type WhiteboardStore interface {
	AppendWhiteboardEvent(ctx context.Context, event *types.WhiteboardEvent) error
	// ListWhiteboardEvents returns the full history in createdAt order for
	// canvas reconstruction.
	ListWhiteboardEvents(ctx context.Context, sessionID string) ([]*types.WhiteboardEvent, error)
}

// AttendanceStore persists session-scoped online presence records.
type AttendanceStore interface {
	// UpsertJoin creates the (session, student) record on first join and is a
	// no-op on repeat joins. Returns the record and whether it was created.
	UpsertJoin(ctx context.Context, sessionID, studentID string) (*types.AttendanceRecord, bool, error)
	// MarkLeft sets left_at best-effort; missing records are not an error.
	MarkLeft(ctx context.Context, sessionID, studentID string) error
	ListSessionAttendance(ctx context.Context, sessionID string) ([]*types.AttendanceRecord, error)
}

// NoteStore persists per-student lesson notes.
type NoteStore interface {
	// UpsertNote creates or replaces the (session, student) note.
	UpsertNote(ctx context.Context, note *types.StudentNote) (*types.StudentNote, error)
	ListSessionNotes(ctx context.Context, sessionID string) ([]*types.StudentNote, error)
	ListStudentNotes(ctx context.Context, studentID, subjectID string) ([]*types.StudentNote, error)
}
