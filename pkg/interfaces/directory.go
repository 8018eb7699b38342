package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// Directory resolves identity, schedule, and daily-attendance data owned by
// external subsystems. This core only reads through it.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*types.User, error)
	GetSchedule(ctx context.Context, scheduleID string) (*types.Schedule, error)
	// GetDailyAttendance returns the physical attendance record for a student
	// on a calendar day (yyyy-mm-dd), or ErrNoAttendance when none exists.
	GetDailyAttendance(ctx context.Context, studentID, day string) (*types.DailyAttendance, error)
	// Display-name lookups for lifecycle broadcasts. Missing rows yield empty
	// names, not errors; events degrade to IDs only.
	GetClassName(ctx context.Context, classID string) (string, error)
	GetSubjectName(ctx context.Context, subjectID string) (string, error)
}
