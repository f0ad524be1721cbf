package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/events"
	"github.com/ignite/ses-guard/internal/pkg/logger"
	"github.com/ignite/ses-guard/internal/ses"
)

// NotificationWriter is the append side of the notification log.
type NotificationWriter interface {
	// Create stores n. It returns false without error when a notification
	// with the same message ID, email and type already exists.
	Create(ctx context.Context, n *domain.Notification) (bool, error)
}

// Ledger records blacklist-triggering events.
type Ledger interface {
	Upsert(ctx context.Context, email string, reason domain.BlacklistReason, details map[string]any) (*domain.BlacklistEntry, error)
}

// Writes are the stores one recipient is recorded through.
type Writes struct {
	Notifications NotificationWriter
	Ledger        Ledger
}

// Transactor runs fn so that every write made through w commits or rolls
// back together. A failed ledger update must not leave its notification
// behind, or the redelivery would be skipped as a duplicate.
type Transactor interface {
	InTx(ctx context.Context, fn func(w Writes) error) error
}

// Registry handles subscription confirmation requests.
type Registry interface {
	HandleConfirmationRequest(ctx context.Context, topicArn, subscribeURL, token string, category domain.SubscriptionCategory) (*domain.Subscription, error)
}

// Observer receives ingestion counters.
type Observer interface {
	ObserveNotification(notificationType, outcome string)
	ObserveLedgerUpsert(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveNotification(string, string) {}
func (nopObserver) ObserveLedgerUpsert(string)         {}

// Config controls ledger tracking and event emission.
type Config struct {
	TrackBounces    bool
	TrackComplaints bool
	EmitBounce      bool
	EmitComplaint   bool
	EmitDelivery    bool
}

// DefaultConfig tracks and emits everything.
func DefaultConfig() Config {
	return Config{
		TrackBounces:    true,
		TrackComplaints: true,
		EmitBounce:      true,
		EmitComplaint:   true,
		EmitDelivery:    true,
	}
}

// Response messages.
const (
	MessageSubscription = "Subscription confirmation received"
	MessageUnsubscribe  = "Unsubscribe confirmation received"
	MessageProcessed    = "Notification processed"
)

// Result summarizes one processed envelope.
type Result struct {
	Message      string
	EnvelopeType string
	Type         domain.NotificationType
	Stored       int
	Duplicates   int
	Subscription *domain.Subscription
}

// Service processes SNS webhook bodies. It is safe for concurrent use.
type Service struct {
	tx        Transactor
	registry  Registry
	publisher events.Publisher
	observer  Observer
	cfg       Config
	now       func() time.Time
}

// NewService wires the ingestion pipeline. publisher and observer may be nil.
func NewService(tx Transactor, registry Registry, publisher events.Publisher, observer Observer, cfg Config) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		tx:        tx,
		registry:  registry,
		publisher: publisher,
		observer:  observer,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Process handles one webhook body received on the category endpoint.
// Classification failures are returned unchanged (see ses.IsClientError);
// persistence failures are returned as *StorageError.
func (s *Service) Process(ctx context.Context, category domain.SubscriptionCategory, raw []byte) (*Result, error) {
	batch, err := ses.Classify(raw)
	if err != nil {
		logger.Warn("[ingest] rejected SNS message", "category", string(category), "error", err)
		return nil, err
	}

	switch batch.EnvelopeType {
	case ses.TypeSubscriptionConfirmation:
		c := batch.Confirmation
		sub, err := s.registry.HandleConfirmationRequest(ctx, c.TopicArn, c.SubscribeURL, c.Token, category)
		if err != nil {
			return nil, &StorageError{Op: "record subscription", Err: err}
		}
		return &Result{Message: MessageSubscription, EnvelopeType: batch.EnvelopeType, Subscription: sub}, nil
	case ses.TypeUnsubscribeConfirmation:
		logger.Info("[ingest] unsubscribe confirmation received", "topic_arn", batch.TopicArn, "category", string(category))
		return &Result{Message: MessageUnsubscribe, EnvelopeType: batch.EnvelopeType}, nil
	}

	res := &Result{Message: MessageProcessed, EnvelopeType: batch.EnvelopeType, Type: batch.NotificationType}
	receivedAt := s.now().UTC()
	for _, item := range batch.Items {
		n := item.Notification
		n.ID = uuid.New().String()
		n.ReceivedAt = receivedAt

		var (
			created bool
			tracked domain.BlacklistReason
		)
		err := s.tx.InTx(ctx, func(w Writes) error {
			ok, err := w.Notifications.Create(ctx, &n)
			if err != nil {
				return &StorageError{Op: "store notification", Err: err}
			}
			if created = ok; !ok {
				return nil
			}
			if tracked, err = s.track(ctx, w.Ledger, n, item.Details); err != nil {
				return &StorageError{Op: "update blacklist", Err: err}
			}
			return nil
		})
		if err != nil {
			var se *StorageError
			if !errors.As(err, &se) {
				se = &StorageError{Op: "commit", Err: err}
			}
			logger.Error("[ingest] failed to record notification",
				"op", se.Op, "type", string(n.Type), "email", n.Email, "error", se.Err)
			return nil, se
		}
		if !created {
			res.Duplicates++
			s.observer.ObserveNotification(string(n.Type), "duplicate")
			logger.Debug("[ingest] duplicate notification skipped", "message_id", n.MessageID, "email", n.Email)
			continue
		}
		res.Stored++
		s.observer.ObserveNotification(string(n.Type), "stored")
		if tracked != "" {
			s.observer.ObserveLedgerUpsert(string(tracked))
		}
		if s.emits(n.Type) {
			s.publisher.Publish(ctx, events.For(n))
		}
	}
	return res, nil
}

// track applies n to the ledger and returns the reason recorded, or "" when
// tracking is off for its type.
func (s *Service) track(ctx context.Context, l Ledger, n domain.Notification, details map[string]any) (domain.BlacklistReason, error) {
	var reason domain.BlacklistReason
	switch {
	case n.Type == domain.TypeBounce && s.cfg.TrackBounces:
		reason = domain.ReasonBounce
	case n.Type == domain.TypeComplaint && s.cfg.TrackComplaints:
		reason = domain.ReasonComplaint
	default:
		return "", nil
	}
	if _, err := l.Upsert(ctx, n.Email, reason, details); err != nil {
		return "", err
	}
	return reason, nil
}

func (s *Service) emits(t domain.NotificationType) bool {
	switch t {
	case domain.TypeBounce:
		return s.cfg.EmitBounce
	case domain.TypeComplaint:
		return s.cfg.EmitComplaint
	case domain.TypeDelivery:
		return s.cfg.EmitDelivery
	}
	return false
}
