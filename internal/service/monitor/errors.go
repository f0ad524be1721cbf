package monitor

import "fmt"

// BlockedError is returned by the pre-send hook when a recipient is refused.
type BlockedError struct {
	Email  string
	Reason Reason
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("send blocked for %s: %s", e.Email, e.Reason)
}
