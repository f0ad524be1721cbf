package ses

import (
	"errors"
	"fmt"
)

// ParseError reports a body that is not valid JSON for its layer.
type ParseError struct {
	Layer string // "envelope" or "message"
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ses: malformed %s: %v", e.Layer, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingFieldError reports an absent required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("ses: missing required field %s", e.Field)
}

// UnknownTypeError reports an unrecognized SNS Type or SES notificationType.
type UnknownTypeError struct {
	Field string // "Type" or "notificationType"
	Value string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("ses: unknown %s %q", e.Field, e.Value)
}

// IsClientError reports whether err was caused by the request body and
// should be answered with 400.
func IsClientError(err error) bool {
	var pe *ParseError
	var me *MissingFieldError
	var ue *UnknownTypeError
	return errors.As(err, &pe) || errors.As(err, &me) || errors.As(err, &ue)
}
