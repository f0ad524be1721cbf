package monitor

import "github.com/ignite/ses-guard/internal/domain"

// Reason names the rule that blocked a send.
type Reason string

const (
	ReasonBlacklisted        Reason = "blacklisted"
	ReasonPermanentBounce    Reason = "permanent_bounce"
	ReasonBounceThreshold    Reason = "bounce_threshold"
	ReasonComplaintThreshold Reason = "complaint_threshold"
	ReasonInvalidEmail       Reason = "invalid_email"
)

var reasonMessages = map[Reason]string{
	ReasonBlacklisted:        "Email is blacklisted",
	ReasonPermanentBounce:    "Email has a permanent bounce",
	ReasonBounceThreshold:    "Email exceeded the bounce threshold",
	ReasonComplaintThreshold: "Email exceeded the complaint threshold",
	ReasonInvalidEmail:       "Email failed validation",
}

// Decision is the allow/block answer for one recipient.
type Decision struct {
	Email      string             `json:"email"`
	CanSend    bool               `json:"can_send"`
	Reason     Reason             `json:"reason,omitempty"`
	Message    string             `json:"message,omitempty"`
	Validation *domain.Validation `json:"validation,omitempty"`
}

func allow(email string) Decision {
	return Decision{Email: email, CanSend: true}
}

func block(email string, reason Reason) Decision {
	return Decision{Email: email, CanSend: false, Reason: reason, Message: reasonMessages[reason]}
}
