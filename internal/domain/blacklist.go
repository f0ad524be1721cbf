package domain

import (
	"strings"
	"time"
)

// BlacklistReason enumerates why an email is on the blacklist.
type BlacklistReason string

const (
	ReasonBounce    BlacklistReason = "bounce"
	ReasonComplaint BlacklistReason = "complaint"
	ReasonInvalid   BlacklistReason = "invalid"
	ReasonManual    BlacklistReason = "manual"
)

// Valid reports whether r is a known reason.
func (r BlacklistReason) Valid() bool {
	switch r {
	case ReasonBounce, ReasonComplaint, ReasonInvalid, ReasonManual:
		return true
	}
	return false
}

// BounceSeverity is the normalized bounce classification stored on an entry.
type BounceSeverity string

const (
	SeverityHard         BounceSeverity = "hard"
	SeveritySoft         BounceSeverity = "soft"
	SeverityUndetermined BounceSeverity = "undetermined"
	SeverityNone         BounceSeverity = "none"
)

// DetailBounceType is the details key carrying the raw bounce type.
const DetailBounceType = "bounce_type"

// SeverityFromBounceType maps a bounce type to a severity: permanent/hard are
// hard, transient/soft are soft, empty is none and anything else passes
// through lower-cased.
func SeverityFromBounceType(bounceType string) BounceSeverity {
	switch v := strings.ToLower(strings.TrimSpace(bounceType)); v {
	case "permanent", "hard":
		return SeverityHard
	case "transient", "soft":
		return SeveritySoft
	case "":
		return SeverityNone
	default:
		return BounceSeverity(v)
	}
}

// SeverityFromDetails reads the bounce_type detail, if any.
func SeverityFromDetails(details map[string]any) BounceSeverity {
	raw, ok := details[DetailBounceType]
	if !ok || raw == nil {
		return SeverityNone
	}
	s, ok := raw.(string)
	if !ok {
		return SeverityNone
	}
	return SeverityFromBounceType(s)
}

// BlacklistEntry is the denormalized suppression record for one address.
type BlacklistEntry struct {
	Email           string          `json:"email" db:"email"`
	Reason          BlacklistReason `json:"reason" db:"reason"`
	BounceSeverity  BounceSeverity  `json:"bounce_severity" db:"bounce_severity"`
	OccurrenceCount int             `json:"occurrence_count" db:"occurrence_count"`
	Details         map[string]any  `json:"details,omitempty" db:"details"`
	LastEventAt     time.Time       `json:"last_event_at" db:"last_event_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// MergeDetails copies src over dst key by key and returns dst.
func MergeDetails(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// BlacklistFilter controls pagination and filtering for blacklist listings.
type BlacklistFilter struct {
	Reason string
	Search string
	Limit  int
	Offset int
}
