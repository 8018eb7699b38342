package whiteboard

import "errors"

// Soft errors: the offending sender gets an ERROR event and the connection
// stays open for everyone.
var (
	ErrPermissionDenied = errors.New("only the session teacher can draw on the whiteboard")
	ErrSessionNotActive = errors.New("session is not active")
)
