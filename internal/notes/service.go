package notes

import (
	"context"
	"errors"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// ErrNotYourClass rejects a note for a session outside the student's class.
var ErrNotYourClass = errors.New("not your class's lesson")

// SessionResolver looks up sessions for membership checks.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
}

// Service manages per-student lesson notes, the digital notebook attached to
// a live session. One note per (session, student); saves update in place.
type Service struct {
	store    interfaces.NoteStore
	sessions SessionResolver
}

// NewService creates the note service.
func NewService(store interfaces.NoteStore, sessions SessionResolver) *Service {
	return &Service{store: store, sessions: sessions}
}

// Save creates or updates the student's note for a session. The session must
// belong to the student's class; it does not have to still be active, so
// notes can be finished after the lesson ends.
func (s *Service) Save(ctx context.Context, student *types.User, sessionID, content, attachmentURL string) (*types.StudentNote, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if student.ClassID == "" || student.ClassID != session.ClassID {
		return nil, ErrNotYourClass
	}

	return s.store.UpsertNote(ctx, &types.StudentNote{
		SessionID:     sessionID,
		StudentID:     student.ID,
		Content:       content,
		AttachmentURL: attachmentURL,
	})
}

// ListForSession returns a session's notes: students see only their own,
// teachers and admins see all of them.
func (s *Service) ListForSession(ctx context.Context, caller *types.User, sessionID string) ([]*types.StudentNote, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	all, err := s.store.ListSessionNotes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if caller.Role != types.RoleStudent {
		return all, nil
	}

	var own []*types.StudentNote
	for _, note := range all {
		if note.StudentID == caller.ID {
			own = append(own, note)
		}
	}
	return own, nil
}

// ListMine returns the student's notes across sessions, optionally filtered
// by subject.
func (s *Service) ListMine(ctx context.Context, studentID, subjectID string) ([]*types.StudentNote, error) {
	return s.store.ListStudentNotes(ctx, studentID, subjectID)
}
