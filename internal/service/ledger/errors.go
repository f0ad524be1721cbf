package ledger

import "errors"

// Sentinel errors for the ledger service layer.
var (
	ErrNotFound      = errors.New("blacklist entry not found")
	ErrEmailRequired = errors.New("email is required")
	ErrInvalidReason = errors.New("invalid blacklist reason")
)
