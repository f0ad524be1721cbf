package ledger

import (
	"context"

	"github.com/ignite/ses-guard/internal/domain"
)

// MutateFunc computes the next state of an entry. existing is nil when the
// email has no row yet. It must not retain existing.
type MutateFunc func(existing *domain.BlacklistEntry) domain.BlacklistEntry

// Repository defines the data access contract for the blacklist.
type Repository interface {
	// Upsert reads the row for email, applies mutate and writes the result,
	// atomically with respect to other Upserts of the same email.
	Upsert(ctx context.Context, email string, mutate MutateFunc) (*domain.BlacklistEntry, error)

	// Get returns the entry for email or ErrNotFound.
	Get(ctx context.Context, email string) (*domain.BlacklistEntry, error)

	// Delete removes the row. It reports whether a row existed.
	Delete(ctx context.Context, email string) (bool, error)

	// List returns entries matching the filter, newest first, and the total
	// number of matches before pagination.
	List(ctx context.Context, filter domain.BlacklistFilter) ([]domain.BlacklistEntry, int, error)

	// CountByReason returns the number of entries per reason.
	CountByReason(ctx context.Context) (map[domain.BlacklistReason]int, error)
}
