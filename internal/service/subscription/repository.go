package subscription

import (
	"context"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
)

// Repository defines the data access contract for subscriptions.
type Repository interface {
	// Upsert inserts or updates the row keyed by TopicArn. SubscribeURL,
	// Token and Category are always overwritten; SubscriptionArn and
	// ConfirmedAt are left untouched.
	Upsert(ctx context.Context, s domain.Subscription) (*domain.Subscription, error)

	// MarkConfirmed sets SubscriptionArn and, if not yet set, ConfirmedAt.
	// Returns ErrNotFound for an unknown topic.
	MarkConfirmed(ctx context.Context, topicArn, subscriptionArn string, at time.Time) (*domain.Subscription, error)

	// Get returns the subscription for topicArn or ErrNotFound.
	Get(ctx context.Context, topicArn string) (*domain.Subscription, error)

	// ListPending returns unconfirmed subscriptions, oldest first. An empty
	// category matches all.
	ListPending(ctx context.Context, category domain.SubscriptionCategory) ([]domain.Subscription, error)
}
