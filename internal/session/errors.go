package session

import "errors"

// Lifecycle errors. InvalidTransition and NotOwner are rejected synchronously
// and cause no partial mutation.
var (
	ErrDuplicateActiveSession = errors.New("an open session already exists for this schedule")
	ErrInvalidTransition      = errors.New("session is in a terminal state")
	ErrNotOwner               = errors.New("only the owning teacher may change this session")
	ErrNotActive              = errors.New("session is not active")
	ErrSessionNotFound        = errors.New("session not found")
	ErrScheduleNotFound       = errors.New("schedule not found")
)
