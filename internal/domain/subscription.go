package domain

import "time"

// SubscriptionCategory is the webhook endpoint a topic delivers to.
type SubscriptionCategory string

const (
	CategoryBounces    SubscriptionCategory = "bounces"
	CategoryComplaints SubscriptionCategory = "complaints"
	CategoryDeliveries SubscriptionCategory = "deliveries"
)

// Valid reports whether c is a known category.
func (c SubscriptionCategory) Valid() bool {
	switch c {
	case CategoryBounces, CategoryComplaints, CategoryDeliveries:
		return true
	}
	return false
}

// Subscription tracks the confirmation state of one SNS topic.
type Subscription struct {
	TopicArn        string               `json:"topic_arn" db:"topic_arn"`
	SubscriptionArn string               `json:"subscription_arn,omitempty" db:"subscription_arn"`
	Category        SubscriptionCategory `json:"category" db:"category"`
	SubscribeURL    string               `json:"subscribe_url" db:"subscribe_url"`
	Token           string               `json:"token,omitempty" db:"token"`
	ConfirmedAt     *time.Time           `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// IsConfirmed reports whether the subscription has ever been confirmed.
func (s Subscription) IsConfirmed() bool {
	return s.ConfirmedAt != nil
}
