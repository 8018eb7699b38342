package types

import "errors"

// Boundary validation errors. Handlers map these to soft ERROR events or
// HTTP 400s; they never terminate a connection on their own.
var (
	ErrMalformedMessage   = errors.New("malformed message frame")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid event payload")
	ErrInvalidEventType   = errors.New("invalid whiteboard event type")
	ErrInvalidID          = errors.New("id must be 1-50 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidStatus      = errors.New("invalid session status")
	ErrInvalidTopic       = errors.New("topic must be at most 500 characters")
)
