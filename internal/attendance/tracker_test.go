package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"liveclass/pkg/types"
)

type fakeAttendanceStore struct {
	records  map[string]*types.AttendanceRecord // sessionID|studentID
	failJoin error
	failLeft error
}

func newFakeAttendanceStore() *fakeAttendanceStore {
	return &fakeAttendanceStore{records: make(map[string]*types.AttendanceRecord)}
}

func (s *fakeAttendanceStore) UpsertJoin(_ context.Context, sessionID, studentID string) (*types.AttendanceRecord, bool, error) {
	if s.failJoin != nil {
		return nil, false, s.failJoin
	}
	key := sessionID + "|" + studentID
	if existing, ok := s.records[key]; ok {
		return existing, false, nil
	}
	record := &types.AttendanceRecord{
		ID: key, SessionID: sessionID, StudentID: studentID, JoinedAt: time.Now().UTC(),
	}
	s.records[key] = record
	return record, true, nil
}

func (s *fakeAttendanceStore) MarkLeft(_ context.Context, sessionID, studentID string) error {
	if s.failLeft != nil {
		return s.failLeft
	}
	if record, ok := s.records[sessionID+"|"+studentID]; ok && record.LeftAt == nil {
		now := time.Now().UTC()
		record.LeftAt = &now
	}
	return nil
}

func (s *fakeAttendanceStore) ListSessionAttendance(_ context.Context, sessionID string) ([]*types.AttendanceRecord, error) {
	var out []*types.AttendanceRecord
	for _, record := range s.records {
		if record.SessionID == sessionID {
			out = append(out, record)
		}
	}
	return out, nil
}

func TestOnJoinIsIdempotent(t *testing.T) {
	store := newFakeAttendanceStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	first, err := tracker.OnJoin(ctx, "sess-1", "student-1")
	if err != nil {
		t.Fatalf("OnJoin failed: %v", err)
	}

	second, err := tracker.OnJoin(ctx, "sess-1", "student-1")
	if err != nil {
		t.Fatalf("second OnJoin failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("reconnect created a new record: %s vs %s", second.ID, first.ID)
	}
	if len(store.records) != 1 {
		t.Errorf("records = %d, want 1", len(store.records))
	}
}

func TestOnJoinPropagatesError(t *testing.T) {
	store := newFakeAttendanceStore()
	store.failJoin = errors.New("db down")
	tracker := NewTracker(store)

	if _, err := tracker.OnJoin(context.Background(), "sess-1", "student-1"); err == nil {
		t.Error("store failure swallowed")
	}
}

func TestOnLeaveStampsOnce(t *testing.T) {
	store := newFakeAttendanceStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	if _, err := tracker.OnJoin(ctx, "sess-1", "student-1"); err != nil {
		t.Fatalf("OnJoin failed: %v", err)
	}

	tracker.OnLeave(ctx, "sess-1", "student-1")
	record := store.records["sess-1|student-1"]
	if record.LeftAt == nil {
		t.Fatal("left_at not stamped")
	}

	stamped := *record.LeftAt
	time.Sleep(5 * time.Millisecond)
	tracker.OnLeave(ctx, "sess-1", "student-1")
	if !record.LeftAt.Equal(stamped) {
		t.Error("second OnLeave moved the timestamp")
	}
}

func TestOnLeaveIsBestEffort(t *testing.T) {
	store := newFakeAttendanceStore()
	store.failLeft = errors.New("db down")
	tracker := NewTracker(store)

	// Must not panic or propagate; the disconnect path cannot fail.
	tracker.OnLeave(context.Background(), "sess-1", "student-1")
}

func TestRecords(t *testing.T) {
	store := newFakeAttendanceStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	for _, id := range []string{"student-1", "student-2"} {
		if _, err := tracker.OnJoin(ctx, "sess-1", id); err != nil {
			t.Fatalf("OnJoin(%s) failed: %v", id, err)
		}
	}

	records, err := tracker.Records(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
}
