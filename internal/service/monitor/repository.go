package monitor

import (
	"context"

	"github.com/ignite/ses-guard/internal/domain"
)

// NotificationStore is the read side of the notification log.
type NotificationStore interface {
	// Count returns the number of notifications matching f. Limit and
	// Offset are ignored.
	Count(ctx context.Context, f domain.NotificationFilter) (int, error)

	// List returns notifications matching f, newest first.
	List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error)
}

// Ledger is the blacklist capability the evaluator needs.
type Ledger interface {
	IsBlocked(ctx context.Context, email string) (bool, error)
	Upsert(ctx context.Context, email string, reason domain.BlacklistReason, details map[string]any) (*domain.BlacklistEntry, error)
}

// Validator checks deliverability. Implementations degrade to a valid result
// when the provider is unavailable and reserve errors for programming faults.
type Validator interface {
	Validate(ctx context.Context, email string) (domain.Validation, error)
}
