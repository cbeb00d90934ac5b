package engine

import (
	"errors"
	"fmt"
	"strings"

	"permitline/internal/domain"
)

var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrPermitClosed      = errors.New("permit is closed")
	ErrValidation        = errors.New("validation failed")
	ErrWrongChannel      = errors.New("role cannot write this channel")
)

// TransitionError reports an action that is not legal for the permit's state or the acting role.
type TransitionError struct {
	From   domain.Status
	Action Action
	Role   domain.Role
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s cannot %s a %s permit", ErrIllegalTransition, e.Role, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// ClosureValidationError lists every gate a closure decision failed.
type ClosureValidationError struct {
	Problems []string
}

func (e *ClosureValidationError) Error() string {
	return "closure " + ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ClosureValidationError) Unwrap() error { return ErrValidation }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
