package ses

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
)

// Ledger detail keys written for bounces and complaints.
const (
	DetailBounceSubType  = "bounce_sub_type"
	DetailDiagnosticCode = "diagnostic_code"
	DetailComplaintType  = "complaint_type"
	DetailUserAgent      = "user_agent"
	DetailFeedbackID     = "feedback_id"
)

// ConfirmationRequest is the payload of a SubscriptionConfirmation envelope.
type ConfirmationRequest struct {
	TopicArn     string
	SubscribeURL string
	Token        string
}

// Item is one classified recipient. Notification has no ID or ReceivedAt
// yet; the caller assigns both when persisting.
type Item struct {
	Notification domain.Notification
	// Details is what a ledger update for this recipient should merge.
	// Nil for deliveries.
	Details map[string]any
}

// ClassifiedBatch is the result of classifying one SNS envelope.
type ClassifiedBatch struct {
	EnvelopeType     string
	TopicArn         string
	Confirmation     *ConfirmationRequest
	NotificationType domain.NotificationType
	Items            []Item
}

// Classify parses a raw SNS envelope. It has no side effects.
func Classify(raw []byte) (*ClassifiedBatch, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Layer: "envelope", Err: err}
	}

	batch := &ClassifiedBatch{EnvelopeType: env.Type, TopicArn: env.TopicArn}
	switch env.Type {
	case TypeSubscriptionConfirmation:
		if env.TopicArn == "" {
			return nil, &MissingFieldError{Field: "TopicArn"}
		}
		if env.SubscribeURL == "" {
			return nil, &MissingFieldError{Field: "SubscribeURL"}
		}
		batch.Confirmation = &ConfirmationRequest{
			TopicArn:     env.TopicArn,
			SubscribeURL: env.SubscribeURL,
			Token:        env.Token,
		}
		return batch, nil
	case TypeUnsubscribeConfirmation:
		return batch, nil
	case TypeNotification:
		if err := classifyMessage(env.Message, batch); err != nil {
			return nil, err
		}
		return batch, nil
	case "":
		return nil, &MissingFieldError{Field: "Type"}
	default:
		return nil, &UnknownTypeError{Field: "Type", Value: env.Type}
	}
}

func classifyMessage(body string, batch *ClassifiedBatch) error {
	if strings.TrimSpace(body) == "" {
		return &MissingFieldError{Field: "Message"}
	}
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return &ParseError{Layer: "message", Err: err}
	}

	base := domain.Notification{
		MessageID:  msg.Mail.MessageID,
		Subject:    msg.Mail.CommonHeaders.Subject,
		RawPayload: []byte(body),
		SentAt:     parseTimestamp(msg.Mail.Timestamp),
	}

	switch kind := msg.Kind(); domain.NotificationType(kind) {
	case domain.TypeBounce:
		batch.NotificationType = domain.TypeBounce
		b := msg.Bounce
		if b == nil {
			b = &Bounce{}
		}
		subType := strings.ToLower(b.BounceType)
		for _, r := range b.BouncedRecipients {
			email := domain.NormalizeEmail(r.EmailAddress)
			if email == "" {
				continue
			}
			n := base
			n.Type = domain.TypeBounce
			n.SubType = subType
			n.BounceSubType = b.BounceSubType
			n.Email = email
			details := map[string]any{
				domain.DetailBounceType: subType,
				DetailBounceSubType:     b.BounceSubType,
			}
			if r.DiagnosticCode != "" {
				details[DetailDiagnosticCode] = r.DiagnosticCode
			}
			if b.FeedbackID != "" {
				details[DetailFeedbackID] = b.FeedbackID
			}
			batch.Items = append(batch.Items, Item{Notification: n, Details: details})
		}
	case domain.TypeComplaint:
		batch.NotificationType = domain.TypeComplaint
		c := msg.Complaint
		if c == nil {
			c = &Complaint{}
		}
		feedback := c.ComplaintFeedbackType
		if feedback == "" {
			feedback = domain.DefaultComplaintFeedbackType
		}
		for _, r := range c.ComplainedRecipients {
			email := domain.NormalizeEmail(r.EmailAddress)
			if email == "" {
				continue
			}
			n := base
			n.Type = domain.TypeComplaint
			n.SubType = feedback
			n.Email = email
			details := map[string]any{DetailComplaintType: feedback}
			if c.UserAgent != "" {
				details[DetailUserAgent] = c.UserAgent
			}
			if c.FeedbackID != "" {
				details[DetailFeedbackID] = c.FeedbackID
			}
			batch.Items = append(batch.Items, Item{Notification: n, Details: details})
		}
	case domain.TypeDelivery:
		batch.NotificationType = domain.TypeDelivery
		var recipients []string
		if msg.Delivery != nil {
			recipients = msg.Delivery.Recipients
		}
		for _, addr := range recipients {
			email := domain.NormalizeEmail(addr)
			if email == "" {
				continue
			}
			n := base
			n.Type = domain.TypeDelivery
			n.SubType = domain.DeliveredSubType
			n.Email = email
			batch.Items = append(batch.Items, Item{Notification: n})
		}
	case "":
		return &MissingFieldError{Field: "notificationType"}
	default:
		return &UnknownTypeError{Field: "notificationType", Value: kind}
	}
	return nil
}

// parseTimestamp returns nil for absent or unparseable SES timestamps.
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// ClientMessage returns the response text for a client error.
func ClientMessage(err error) string {
	var pe *ParseError
	var me *MissingFieldError
	var ue *UnknownTypeError
	switch {
	case errors.As(err, &ue) && ue.Field == "notificationType":
		return "Unknown notification type"
	case errors.As(err, &ue):
		return "Unknown message type"
	case errors.As(err, &me) && me.Field == "Type":
		return "Invalid message"
	case errors.As(err, &me):
		return "Missing required fields"
	case errors.As(err, &pe) && pe.Layer == "message":
		return "Invalid notification"
	default:
		return "Invalid message"
	}
}
