package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Authorization errors. Every one of them is a hard denial evaluated once at
// connect time; the transport maps them to close code 4003.
var (
	ErrRoleNotAllowed    = errors.New("only teachers and students may join a live session")
	ErrNotSessionTeacher = errors.New("not your session")
	ErrNotClassMember    = errors.New("not your class session")
	ErrNotArrived        = errors.New("school attendance not marked yet")
	ErrMarkedAbsent      = errors.New("marked absent today")
)

// Gate is the stateless join-policy evaluator: role, then ownership or class
// membership, then the student's same-day physical attendance precondition.
type Gate struct {
	directory interfaces.Directory
	now       func() time.Time
}

// New creates a gate over the external directory.
func New(directory interfaces.Directory) *Gate {
	return &Gate{directory: directory, now: time.Now}
}

// NewAt creates a gate with a fixed clock, for tests.
func NewAt(directory interfaces.Directory, now func() time.Time) *Gate {
	return &Gate{directory: directory, now: now}
}

// Authorize decides whether a user may join a session. Returns nil to admit,
// or one of the package errors to deny.
func (g *Gate) Authorize(ctx context.Context, user *types.User, session *types.Session) error {
	switch user.Role {
	case types.RoleTeacher:
		if user.ID != session.TeacherID {
			return ErrNotSessionTeacher
		}
		return nil

	case types.RoleStudent:
		if user.ClassID == "" || user.ClassID != session.ClassID {
			return ErrNotClassMember
		}
		return g.checkDailyAttendance(ctx, user.ID)

	default:
		return ErrRoleNotAllowed
	}
}

// checkDailyAttendance enforces the physical-presence precondition: a student
// with no record today has not arrived at school; ABSENT is denied; PRESENT,
// LATE, and EXCUSED are admitted.
func (g *Gate) checkDailyAttendance(ctx context.Context, studentID string) error {
	day := g.now().UTC().Format("2006-01-02")

	record, err := g.directory.GetDailyAttendance(ctx, studentID, day)
	if err != nil {
		if errors.Is(err, interfaces.ErrNoAttendance) {
			return ErrNotArrived
		}
		return fmt.Errorf("failed to check daily attendance: %w", err)
	}

	if record.Status == types.AttendanceAbsent {
		return ErrMarkedAbsent
	}
	return nil
}

// IsDenial reports whether an error is a policy denial rather than an
// infrastructure failure.
func IsDenial(err error) bool {
	return errors.Is(err, ErrRoleNotAllowed) ||
		errors.Is(err, ErrNotSessionTeacher) ||
		errors.Is(err, ErrNotClassMember) ||
		errors.Is(err, ErrNotArrived) ||
		errors.Is(err, ErrMarkedAbsent)
}
