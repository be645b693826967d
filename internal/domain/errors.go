package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoFields          = errors.New("no fields to update")
)

type ValidationError struct {
	msg string
	err error
}

func NewValidationError(msg string) error {
	return &ValidationError{msg: msg}
}

// NoFieldsError is the validation error returned for an empty patch.
func NoFieldsError() error {
	return &ValidationError{msg: ErrNoFields.Error(), err: ErrNoFields}
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

// TransitionError reports a status change that is not an edge of the state
// machine. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From fmt.Stringer
	To   fmt.Stringer
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
