package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField   = errors.New("missing field")
	ErrOutOfRange     = errors.New("value out of range")
	ErrInvalidValue   = errors.New("invalid value")
	ErrUnknownField   = errors.New("unknown field")
	ErrDuplicateField = errors.New("duplicate field")
)

// DecodeError reports a message body that is not a valid task. It is terminal for the message.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode task: %v", e.Err)
	}
	return fmt.Sprintf("decode task: field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
