package interfaces

import "errors"

// Shared sentinel errors returned by store and collaborator implementations.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNoteNotFound     = errors.New("note not found")
	ErrNoAttendance     = errors.New("no daily attendance record")
	ErrDuplicateSession = errors.New("an open session already exists for this schedule")
	ErrSessionClosed    = errors.New("session is already closed")
)
