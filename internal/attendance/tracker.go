package attendance

import (
	"context"
	"log"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Tracker derives online-presence attendance from room join/leave events.
// Distinct from the daily physical attendance the gate consumes.
type Tracker struct {
	store interfaces.AttendanceStore
}

// NewTracker creates a tracker over the attendance store.
func NewTracker(store interfaces.AttendanceStore) *Tracker {
	return &Tracker{store: store}
}

// OnJoin records a student's presence. Only the first join per (session,
// student) creates a row; reconnects return the existing record.
func (t *Tracker) OnJoin(ctx context.Context, sessionID, studentID string) (*types.AttendanceRecord, error) {
	record, created, err := t.store.UpsertJoin(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("Attendance recorded: session=%s student=%s", sessionID, studentID)
	}
	return record, nil
}

// OnLeave stamps left_at best-effort. A disconnect caused by network failure
// may never reach this path, so left_at can legitimately stay null; that is
// a documented property of the record, not something to repair.
func (t *Tracker) OnLeave(ctx context.Context, sessionID, studentID string) {
	if err := t.store.MarkLeft(ctx, sessionID, studentID); err != nil {
		log.Printf("Failed to mark attendance left: session=%s student=%s err=%v",
			sessionID, studentID, err)
	}
}

// Records returns a session's presence records in join order.
func (t *Tracker) Records(ctx context.Context, sessionID string) ([]*types.AttendanceRecord, error) {
	return t.store.ListSessionAttendance(ctx, sessionID)
}
