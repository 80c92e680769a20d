package session

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted  = errors.New("attempt already started")
	ErrNotStarted      = errors.New("attempt has not been started")
	ErrSessionClosed   = errors.New("attempt is closed")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptExists   = errors.New("an attempt for this exam already exists")
	ErrNotEligible     = errors.New("exam is not available to this student")
	ErrNotPersisted    = errors.New("result compiled but not persisted")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
