// Package events carries notification events from ingestion to optional
// listeners (archive, SES suppression sync, logging). Publishing never blocks
// the webhook response and a failing listener never affects it.
package events

import (
	"context"

	"github.com/ignite/ses-guard/internal/domain"
)

// Event names.
const (
	NameBounceReceived    = "bounce.received"
	NameComplaintReceived = "complaint.received"
	NameDeliveryReceived  = "delivery.received"
)

// Event is a classified notification that has been persisted.
type Event interface {
	Name() string
	Notification() domain.Notification
}

// BounceReceived is emitted for every stored bounce recipient.
type BounceReceived struct {
	N domain.Notification
}

func (e BounceReceived) Name() string                      { return NameBounceReceived }
func (e BounceReceived) Notification() domain.Notification { return e.N }
func (e BounceReceived) Email() string                     { return e.N.Email }
func (e BounceReceived) IsPermanent() bool                 { return e.N.IsPermanentBounce() }
func (e BounceReceived) IsTransient() bool                 { return e.N.IsTransientBounce() }
func (e BounceReceived) BounceSubType() string             { return e.N.BounceSubType }

// ComplaintReceived is emitted for every stored complaint recipient.
type ComplaintReceived struct {
	N domain.Notification
}

func (e ComplaintReceived) Name() string                      { return NameComplaintReceived }
func (e ComplaintReceived) Notification() domain.Notification { return e.N }
func (e ComplaintReceived) Email() string                     { return e.N.Email }
func (e ComplaintReceived) FeedbackType() string              { return e.N.FeedbackType() }

// DeliveryReceived is emitted for every stored delivery recipient.
type DeliveryReceived struct {
	N domain.Notification
}

func (e DeliveryReceived) Name() string                      { return NameDeliveryReceived }
func (e DeliveryReceived) Notification() domain.Notification { return e.N }
func (e DeliveryReceived) Email() string                     { return e.N.Email }

// For wraps n in the event matching its type. It returns nil for unknown types.
func For(n domain.Notification) Event {
	switch n.Type {
	case domain.TypeBounce:
		return BounceReceived{N: n}
	case domain.TypeComplaint:
		return ComplaintReceived{N: n}
	case domain.TypeDelivery:
		return DeliveryReceived{N: n}
	}
	return nil
}

// Publisher accepts events. Implementations must not block on listeners.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Listener handles one event. Errors are logged by the dispatcher.
type Listener interface {
	Handle(ctx context.Context, e Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
