package types

import (
	"encoding/json"
	"time"
)

// User roles as resolved by the identity collaborator.
const (
	RoleTeacher = "TEACHER"
	RoleStudent = "STUDENT"
	RoleAdmin   = "ADMIN"
	RoleParent  = "PARENT"
)

// Session lifecycle states. ENDED and CANCELLED are terminal.
const (
	SessionPending   = "PENDING"
	SessionActive    = "ACTIVE"
	SessionEnded     = "ENDED"
	SessionCancelled = "CANCELLED"
)

// Daily (physical) attendance statuses, external collaborator input.
const (
	AttendancePresent = "PRESENT"
	AttendanceAbsent  = "ABSENT"
	AttendanceLate    = "LATE"
	AttendanceExcused = "EXCUSED"
)

// Whiteboard event types stored in the append-only log.
const (
	WhiteboardDraw  = "DRAW"
	WhiteboardErase = "ERASE"
	WhiteboardClear = "CLEAR"
)

// Session is a live lesson started from a timetable schedule.
// Immutable after creation except for status and ended_at, which change only
// through the lifecycle manager.
type Session struct {
	ID         string     `json:"id" db:"id"`
	ScheduleID string     `json:"schedule_id" db:"schedule_id"`
	TeacherID  string     `json:"teacher_id" db:"teacher_id"`
	ClassID    string     `json:"class_id" db:"class_id"`
	SubjectID  string     `json:"subject_id" db:"subject_id"`
	Status     string     `json:"status" db:"status"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Topic      string     `json:"topic,omitempty" db:"topic"`
}

// IsOpen reports whether the session still accepts participants.
func (s *Session) IsOpen() bool {
	return s.Status == SessionPending || s.Status == SessionActive
}

// IsTerminal reports whether the session reached a final state.
func (s *Session) IsTerminal() bool {
	return s.Status == SessionEnded || s.Status == SessionCancelled
}

// User is identity data resolved from a bearer credential. Read-only here;
// user management is owned by an external subsystem.
type User struct {
	ID       string `json:"id" db:"id"`
	FullName string `json:"full_name" db:"full_name"`
	Role     string `json:"role" db:"role"`
	ClassID  string `json:"class_id,omitempty" db:"class_id"` // empty unless the user is a student
	IsActive bool   `json:"is_active" db:"is_active"`
}

// Schedule is a timetable slot owned by the scheduling subsystem.
type Schedule struct {
	ID        string `json:"id" db:"id"`
	TeacherID string `json:"teacher_id" db:"teacher_id"`
	ClassID   string `json:"class_id" db:"class_id"`
	SubjectID string `json:"subject_id" db:"subject_id"`
}

// DailyAttendance is the physical attendance record keyed by (student, day).
// Collaborator input for the access gate, never written by this core.
type DailyAttendance struct {
	ID        string `json:"id" db:"id"`
	StudentID string `json:"student_id" db:"student_id"`
	Day       string `json:"day" db:"day"` // yyyy-mm-dd
	Status    string `json:"status" db:"status"`
}

// AttendanceRecord is the session-scoped online presence record. One row per
// (session, student); created on first join, left_at updated best-effort on
// disconnect.
type AttendanceRecord struct {
	ID        string     `json:"id" db:"id"`
	SessionID string     `json:"session_id" db:"session_id"`
	StudentID string     `json:"student_id" db:"student_id"`
	JoinedAt  time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// WhiteboardEvent is one row of the append-only drawing log. Rows are never
// updated or deleted; CLEAR is stored like any other event and full history
// is retained for audit.
type WhiteboardEvent struct {
	ID        string          `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	CreatedBy string          `json:"created_by" db:"created_by"`
	Type      string          `json:"type" db:"event_type"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// StudentNote is a note taken by a student during a session. One note per
// (session, student); repeated saves update in place.
type StudentNote struct {
	ID            string    `json:"id" db:"id"`
	SessionID     string    `json:"session_id" db:"session_id"`
	StudentID     string    `json:"student_id" db:"student_id"`
	Content       string    `json:"content" db:"content"`
	AttachmentURL string    `json:"attachment_url,omitempty" db:"attachment_url"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
