package service

import (
	"errors"
	"fmt"
)

// Service errors. Specific reasons are attached with withReason.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrAuthorizationDenied    = errors.New("authorization denied")
	ErrGameNotFound           = errors.New("game not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrValidation             = errors.New("validation failed")
	ErrOutOfSync              = errors.New("game out of sync")
	ErrRuleViolation          = errors.New("rule violation")
	ErrRegistrationFailed     = errors.New("registration failed: name or email already exists")
	ErrInternalServer         = errors.New("internal server error")
)

// reasonError carries a client facing reason for a sentinel error.
type reasonError struct {
	kind   error
	reason string
}

func (e *reasonError) Error() string { return e.reason }
func (e *reasonError) Unwrap() error { return e.kind }

// withReason keeps kind for errors.Is while Error() returns only the reason.
func withReason(kind error, format string, args ...any) error {
	return &reasonError{kind: kind, reason: fmt.Sprintf(format, args...)}
}

// Reason returns the client facing message of err.
func Reason(err error) string {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	return err.Error()
}
