package subscription

import (
	"errors"
	"fmt"
)

// Sentinel errors for the subscription service layer.
var (
	ErrNotFound        = errors.New("subscription not found")
	ErrInvalidCategory = errors.New("invalid subscription category")
	ErrInProgress      = errors.New("confirmation already in progress")
)

// ConfirmationError reports a failed outbound confirmation fetch.
type ConfirmationError struct {
	TopicArn string
	Err      error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("confirm subscription %s: %v", e.TopicArn, e.Err)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }
