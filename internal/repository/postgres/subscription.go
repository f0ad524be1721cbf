package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/service/subscription"
)

// SubscriptionRepo implements subscription.Repository against PostgreSQL.
type SubscriptionRepo struct{ db *sql.DB }

// NewSubscriptionRepo creates a Postgres-backed subscription registry.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

const subscriptionColumns = `topic_arn, COALESCE(subscription_arn, ''), category, subscribe_url, COALESCE(token, ''), confirmed_at, created_at, updated_at`

func scanSubscription(s rowScanner) (*domain.Subscription, error) {
	var (
		sub         domain.Subscription
		category    string
		confirmedAt sql.NullTime
	)
	if err := s.Scan(&sub.TopicArn, &sub.SubscriptionArn, &category, &sub.SubscribeURL, &sub.Token,
		&confirmedAt, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Category = domain.SubscriptionCategory(category)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		sub.ConfirmedAt = &t
	}
	return &sub, nil
}

func (r *SubscriptionRepo) Upsert(ctx context.Context, s domain.Subscription) (*domain.Subscription, error) {
	out, err := scanSubscription(r.db.QueryRowContext(ctx, `
		INSERT INTO sns_subscriptions (topic_arn, category, subscribe_url, token, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW(), NOW())
		ON CONFLICT (topic_arn) DO UPDATE
		SET category = $2, subscribe_url = $3, token = NULLIF($4, ''), updated_at = NOW()
		RETURNING `+subscriptionColumns,
		s.TopicArn, string(s.Category), s.SubscribeURL, s.Token))
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return out, nil
}

// MarkConfirmed records the subscription ARN. confirmed_at is only set the
// first time.
func (r *SubscriptionRepo) MarkConfirmed(ctx context.Context, topicArn, subscriptionArn string, at time.Time) (*domain.Subscription, error) {
	out, err := scanSubscription(r.db.QueryRowContext(ctx, `
		UPDATE sns_subscriptions
		SET subscription_arn = $2, confirmed_at = COALESCE(confirmed_at, $3), updated_at = NOW()
		WHERE topic_arn = $1
		RETURNING `+subscriptionColumns,
		topicArn, subscriptionArn, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("confirm subscription: %w", err)
	}
	return out, nil
}

func (r *SubscriptionRepo) Get(ctx context.Context, topicArn string) (*domain.Subscription, error) {
	out, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM sns_subscriptions WHERE topic_arn = $1`, topicArn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return out, nil
}

func (r *SubscriptionRepo) ListPending(ctx context.Context, c domain.SubscriptionCategory) ([]domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM sns_subscriptions
		WHERE confirmed_at IS NULL AND ($1::text = '' OR category = $1)
		ORDER BY created_at, topic_arn
	`, string(c))
	if err != nil {
		return nil, fmt.Errorf("list pending subscriptions: %w", err)
	}
	defer rows.Close()

	out := []domain.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
