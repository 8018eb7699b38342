package types

import (
	"encoding/json"
	"regexp"
)

// Compiled once; identifiers are validated on every handshake and write path.
var (
	idRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
	colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)
	dayRegex   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// IsValidID reports whether an identifier is acceptable on the wire:
// 1-50 characters, alphanumeric plus underscore and hyphen.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidRole reports whether a role string is one of the known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleTeacher, RoleStudent, RoleAdmin, RoleParent:
		return true
	}
	return false
}

// IsValidSessionStatus reports whether a status is one of the four states.
func IsValidSessionStatus(status string) bool {
	switch status {
	case SessionPending, SessionActive, SessionEnded, SessionCancelled:
		return true
	}
	return false
}

// IsValidAttendanceStatus reports whether a daily attendance status is known.
func IsValidAttendanceStatus(status string) bool {
	switch status {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// IsValidWhiteboardType reports whether a whiteboard event type is known.
func IsValidWhiteboardType(t string) bool {
	switch t {
	case WhiteboardDraw, WhiteboardErase, WhiteboardClear:
		return true
	}
	return false
}

// IsValidDay reports whether a calendar day is in yyyy-mm-dd form.
func IsValidDay(day string) bool {
	return dayRegex.MatchString(day)
}

// Validate checks session fields that must hold for every persisted row.
func (s *Session) Validate() error {
	if !IsValidID(s.ID) || !IsValidID(s.ScheduleID) || !IsValidID(s.TeacherID) {
		return ErrInvalidID
	}
	if !IsValidSessionStatus(s.Status) {
		return ErrInvalidStatus
	}
	if len(s.Topic) > 500 {
		return ErrInvalidTopic
	}
	return nil
}

// Validate checks a DRAW payload before it is persisted or broadcast.
func (p *DrawPayload) Validate() error {
	if p.Size <= 0 || p.Size > 200 {
		return ErrInvalidPayload
	}
	if !colorRegex.MatchString(p.Color) {
		return ErrInvalidPayload
	}
	return nil
}

// Validate checks an ERASE payload.
func (p *ErasePayload) Validate() error {
	if p.Size <= 0 || p.Size > 200 {
		return ErrInvalidPayload
	}
	return nil
}

// ValidateStoredPayload checks a raw payload against its stored event type.
// Used on the append path so the log never accepts an unparseable row.
func ValidateStoredPayload(eventType string, payload json.RawMessage) error {
	switch eventType {
	case WhiteboardDraw:
		var p DrawPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return ErrInvalidPayload
		}
		return p.Validate()
	case WhiteboardErase:
		var p ErasePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return ErrInvalidPayload
		}
		return p.Validate()
	case WhiteboardClear:
		// CLEAR carries an empty object; anything parseable is accepted.
		if len(payload) == 0 {
			return nil
		}
		var v map[string]any
		if err := json.Unmarshal(payload, &v); err != nil {
			return ErrInvalidPayload
		}
		return nil
	default:
		return ErrInvalidEventType
	}
}
