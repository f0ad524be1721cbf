package api

import (
	"context"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/service/ingest"
	"github.com/ignite/ses-guard/internal/service/ledger"
	"github.com/ignite/ses-guard/internal/service/monitor"
)

// Ingester processes SNS webhook bodies.
type Ingester interface {
	Process(ctx context.Context, category domain.SubscriptionCategory, raw []byte) (*ingest.Result, error)
}

// Evaluator answers send-eligibility questions.
type Evaluator interface {
	Check(ctx context.Context, recipients []string, subject string) ([]monitor.Decision, error)
	CanSend(ctx context.Context, email string) (monitor.Decision, error)
	ValidateBatch(ctx context.Context, emails []string) (map[string]monitor.Decision, error)
	ListNotifications(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error)
}

// Blacklist is the operator view of the ledger.
type Blacklist interface {
	Get(ctx context.Context, email string) (*domain.BlacklistEntry, error)
	List(ctx context.Context, f domain.BlacklistFilter) ([]domain.BlacklistEntry, int, error)
	GetStats(ctx context.Context) (*ledger.Stats, error)
	Upsert(ctx context.Context, email string, reason domain.BlacklistReason, details map[string]any) (*domain.BlacklistEntry, error)
	Remove(ctx context.Context, email string) (bool, error)
}

// Registry is the operator view of SNS subscriptions.
type Registry interface {
	ListPending(ctx context.Context, category domain.SubscriptionCategory) ([]domain.Subscription, error)
	ConfirmPending(ctx context.Context, topicArn string) (*domain.Subscription, error)
}

// CreditSource reports remaining validation credits.
type CreditSource interface {
	Enabled() bool
	Credits(ctx context.Context) (int, error)
}

// DecisionObserver counts send decisions.
type DecisionObserver interface {
	ObserveDecision(allowed bool, reason string)
}

type nopDecisions struct{}

func (nopDecisions) ObserveDecision(bool, string) {}

// Handlers holds the services behind the HTTP surface.
type Handlers struct {
	ingest       Ingester
	evaluator    Evaluator
	blacklist    Blacklist
	registry     Registry
	credits      CreditSource
	decisions    DecisionObserver
	maxBodyBytes int64
}

// Deps bundles handler dependencies. Credits and Decisions may be nil.
type Deps struct {
	Ingest       Ingester
	Evaluator    Evaluator
	Blacklist    Blacklist
	Registry     Registry
	Credits      CreditSource
	Decisions    DecisionObserver
	MaxBodyBytes int64
}

// NewHandlers creates the handler set.
func NewHandlers(d Deps) *Handlers {
	if d.Decisions == nil {
		d.Decisions = nopDecisions{}
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 5 << 20
	}
	return &Handlers{
		ingest:       d.Ingest,
		evaluator:    d.Evaluator,
		blacklist:    d.Blacklist,
		registry:     d.Registry,
		credits:      d.Credits,
		decisions:    d.Decisions,
		maxBodyBytes: d.MaxBodyBytes,
	}
}
