package domain

import "errors"

var (
	// ErrInvalidSessionID is returned when a session id is not a positive integer.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrInvalidStatus is returned for any status other than IN_PROGRESS or COMPLETED.
	ErrInvalidStatus = errors.New("invalid session status")
	// ErrPendingNotFound indicates no unsynced status exists for a session.
	ErrPendingNotFound = errors.New("pending status not found")
	// ErrRemoteRejected indicates the session API refused a status update.
	ErrRemoteRejected = errors.New("session api rejected status update")
)
