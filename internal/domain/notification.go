package domain

import (
	"strings"
	"time"
)

// NotificationType is the SES notificationType of a stored event.
type NotificationType string

const (
	TypeBounce    NotificationType = "Bounce"
	TypeComplaint NotificationType = "Complaint"
	TypeDelivery  NotificationType = "Delivery"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeBounce, TypeComplaint, TypeDelivery:
		return true
	}
	return false
}

// Bounce sub types as they appear after lower-casing SES bounceType.
const (
	BouncePermanent    = "permanent"
	BounceTransient    = "transient"
	BounceUndetermined = "undetermined"
)

// DefaultComplaintFeedbackType is used when SES omits complaintFeedbackType.
const DefaultComplaintFeedbackType = "abuse"

// DeliveredSubType is the sub type recorded for delivery notifications.
const DeliveredSubType = "delivered"

// Notification is one classified SES event for one recipient. It is immutable
// once created.
type Notification struct {
	ID            string           `json:"id" db:"id"`
	MessageID     string           `json:"message_id,omitempty" db:"message_id"`
	Type          NotificationType `json:"type" db:"type"`
	SubType       string           `json:"sub_type" db:"sub_type"`
	BounceSubType string           `json:"bounce_sub_type,omitempty" db:"bounce_sub_type"`
	Email         string           `json:"email" db:"email"`
	Subject       string           `json:"subject,omitempty" db:"subject"`
	RawPayload    []byte           `json:"-" db:"raw_payload"`
	SentAt        *time.Time       `json:"sent_at,omitempty" db:"sent_at"`
	ReceivedAt    time.Time        `json:"received_at" db:"received_at"`
}

// Severity returns the bounce severity for bounce notifications and
// SeverityNone for everything else.
func (n Notification) Severity() BounceSeverity {
	if n.Type != TypeBounce {
		return SeverityNone
	}
	return SeverityFromBounceType(n.SubType)
}

// IsPermanentBounce reports whether n is a hard bounce.
func (n Notification) IsPermanentBounce() bool {
	return n.Type == TypeBounce && n.SubType == BouncePermanent
}

// IsTransientBounce reports whether n is a soft bounce.
func (n Notification) IsTransientBounce() bool {
	return n.Type == TypeBounce && n.SubType == BounceTransient
}

// FeedbackType returns the complaint feedback type, or "" for non-complaints.
func (n Notification) FeedbackType() string {
	if n.Type != TypeComplaint {
		return ""
	}
	return n.SubType
}

// NotificationFilter selects notifications from the store. Zero-valued fields
// do not filter.
type NotificationFilter struct {
	Email   string
	Type    NotificationType
	SubType string
	// Subject is an exact match when non-nil and non-empty.
	Subject *string
	// Since keeps notifications received at or after the instant.
	Since  time.Time
	Limit  int
	Offset int
}

// HasSubject reports whether f filters by subject. An empty subject does
// not filter.
func (f NotificationFilter) HasSubject() bool {
	return f.Subject != nil && *f.Subject != ""
}

// Matches reports whether n satisfies every set field of f.
func (f NotificationFilter) Matches(n Notification) bool {
	if f.Email != "" && n.Email != NormalizeEmail(f.Email) {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.SubType != "" && n.SubType != f.SubType {
		return false
	}
	if f.HasSubject() && n.Subject != *f.Subject {
		return false
	}
	if !f.Since.IsZero() && n.ReceivedAt.Before(f.Since) {
		return false
	}
	return true
}

// NormalizeEmail lower-cases and trims an address. Every lookup and write
// keyed by email goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
