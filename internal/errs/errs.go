package errs

import (
	"errors"
	"fmt"
)

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrTicketClosed     = errors.New("ticket is closed")
	ErrNoCoachAvailable = errors.New("no coach available")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("not allowed on this ticket")
	ErrInvalidStatus    = errors.New("invalid ticket status")
	ErrSessionNotFound  = errors.New("session has no pending notifications")
)

// ValidationError marks a malformed request payload. It is rejected
// before reaching business logic.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is one of the NotFound-kind errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTicketNotFound) || errors.Is(err, ErrSessionNotFound)
}
