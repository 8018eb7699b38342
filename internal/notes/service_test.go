package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

type fakeNoteStore struct {
	notes map[string]*types.StudentNote // sessionID|studentID
}

func newFakeNoteStore() *fakeNoteStore {
	return &fakeNoteStore{notes: make(map[string]*types.StudentNote)}
}

func (s *fakeNoteStore) UpsertNote(_ context.Context, note *types.StudentNote) (*types.StudentNote, error) {
	key := note.SessionID + "|" + note.StudentID
	existing, ok := s.notes[key]
	if ok {
		existing.Content = note.Content
		existing.AttachmentURL = note.AttachmentURL
		existing.UpdatedAt = time.Now().UTC()
		return existing, nil
	}
	saved := *note
	saved.ID = uuid.New().String()
	saved.CreatedAt = time.Now().UTC()
	saved.UpdatedAt = saved.CreatedAt
	s.notes[key] = &saved
	return &saved, nil
}

func (s *fakeNoteStore) ListSessionNotes(_ context.Context, sessionID string) ([]*types.StudentNote, error) {
	var out []*types.StudentNote
	for _, note := range s.notes {
		if note.SessionID == sessionID {
			out = append(out, note)
		}
	}
	return out, nil
}

func (s *fakeNoteStore) ListStudentNotes(_ context.Context, studentID, _ string) ([]*types.StudentNote, error) {
	var out []*types.StudentNote
	for _, note := range s.notes {
		if note.StudentID == studentID {
			out = append(out, note)
		}
	}
	return out, nil
}

type fakeResolver struct {
	sessions map[string]*types.Session
}

func (r *fakeResolver) GetSession(_ context.Context, sessionID string) (*types.Session, error) {
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

func newTestService() *Service {
	resolver := &fakeResolver{sessions: map[string]*types.Session{
		"sess-1": {ID: "sess-1", TeacherID: "teacher-1", ClassID: "class-7a", Status: types.SessionEnded},
	}}
	return NewService(newFakeNoteStore(), resolver)
}

func student() *types.User {
	return &types.User{ID: "student-1", Role: types.RoleStudent, ClassID: "class-7a", IsActive: true}
}

func TestSaveAndUpdate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// The session has already ended; notes can still be written.
	first, err := svc.Save(ctx, student(), "sess-1", "draft", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second, err := svc.Save(ctx, student(), "sess-1", "final", "https://example.com/a.png")
	if err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second save created a new note: %s vs %s", second.ID, first.ID)
	}
	if second.Content != "final" {
		t.Errorf("content = %q, want final", second.Content)
	}
}

func TestSaveRejectsOtherClass(t *testing.T) {
	svc := newTestService()

	outsider := &types.User{ID: "student-9", Role: types.RoleStudent, ClassID: "class-9z"}
	if _, err := svc.Save(context.Background(), outsider, "sess-1", "hi", ""); !errors.Is(err, ErrNotYourClass) {
		t.Errorf("error = %v, want %v", err, ErrNotYourClass)
	}

	unassigned := &types.User{ID: "student-8", Role: types.RoleStudent}
	if _, err := svc.Save(context.Background(), unassigned, "sess-1", "hi", ""); !errors.Is(err, ErrNotYourClass) {
		t.Errorf("error = %v, want %v", err, ErrNotYourClass)
	}
}

func TestSaveUnknownSession(t *testing.T) {
	svc := newTestService()

	if _, err := svc.Save(context.Background(), student(), "ghost", "hi", ""); err == nil {
		t.Error("unknown session accepted")
	}
}

func TestListForSessionScoping(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Save(ctx, student(), "sess-1", "mine", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	classmate := &types.User{ID: "student-2", Role: types.RoleStudent, ClassID: "class-7a"}
	if _, err := svc.Save(ctx, classmate, "sess-1", "theirs", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	own, err := svc.ListForSession(ctx, student(), "sess-1")
	if err != nil {
		t.Fatalf("ListForSession(student) failed: %v", err)
	}
	if len(own) != 1 || own[0].StudentID != "student-1" {
		t.Errorf("student sees %+v, want only own note", own)
	}

	teacher := &types.User{ID: "teacher-1", Role: types.RoleTeacher}
	all, err := svc.ListForSession(ctx, teacher, "sess-1")
	if err != nil {
		t.Fatalf("ListForSession(teacher) failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("teacher sees %d notes, want 2", len(all))
	}
}
