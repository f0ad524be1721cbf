package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/pkg/logger"
)

// BounceRule controls bounce-based blocking.
type BounceRule struct {
	Enabled               bool
	MaxBounces            int
	CheckBySubject        bool
	BlockPermanentBounces bool
	DaysToCheck           int // 0 = unbounded
}

// ComplaintRule controls complaint-based blocking.
type ComplaintRule struct {
	Enabled        bool
	MaxComplaints  int
	CheckBySubject bool
	DaysToCheck    int
}

// Config holds the evaluator rules.
type Config struct {
	// Enabled=false makes the pre-send hook allow everything.
	Enabled            bool
	Bounces            BounceRule
	Complaints         ComplaintRule
	ValidateBeforeSend bool
}

// DefaultConfig returns the stock rules.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Bounces: BounceRule{
			Enabled:               true,
			MaxBounces:            3,
			BlockPermanentBounces: true,
			DaysToCheck:           30,
		},
		Complaints: ComplaintRule{
			Enabled:        true,
			MaxComplaints:  1,
			CheckBySubject: true,
		},
	}
}

// Service evaluates send eligibility. It is safe for concurrent use.
type Service struct {
	store     NotificationStore
	ledger    Ledger
	validator Validator
	cfg       Config
	now       func() time.Time
}

// NewService creates an evaluator. validator may be nil, in which case
// CanSend reports every address as valid with status validation_disabled.
func NewService(store NotificationStore, ledger Ledger, validator Validator, cfg Config) *Service {
	if cfg.Bounces.MaxBounces <= 0 {
		cfg.Bounces.MaxBounces = 3
	}
	if cfg.Complaints.MaxComplaints <= 0 {
		cfg.Complaints.MaxComplaints = 1
	}
	return &Service{store: store, ledger: ledger, validator: validator, cfg: cfg, now: time.Now}
}

// Config returns the active rules.
func (s *Service) Config() Config { return s.cfg }

// Evaluate applies the rules in order; the first match blocks.
func (s *Service) Evaluate(ctx context.Context, email, subject string) (Decision, error) {
	email = domain.NormalizeEmail(email)

	blocked, err := s.ledger.IsBlocked(ctx, email)
	if err != nil {
		return Decision{}, fmt.Errorf("check blacklist: %w", err)
	}
	if blocked {
		return block(email, ReasonBlacklisted), nil
	}

	if br := s.cfg.Bounces; br.Enabled {
		if br.BlockPermanentBounces {
			permanent, err := s.HasPermanentBounce(ctx, email)
			if err != nil {
				return Decision{}, err
			}
			if permanent {
				return block(email, ReasonPermanentBounce), nil
			}
		}
		n, err := s.CountBounces(ctx, email, s.subjectFilter(br.CheckBySubject, subject), br.DaysToCheck)
		if err != nil {
			return Decision{}, err
		}
		if n >= br.MaxBounces {
			return block(email, ReasonBounceThreshold), nil
		}
	}

	if cr := s.cfg.Complaints; cr.Enabled {
		n, err := s.CountComplaints(ctx, email, s.subjectFilter(cr.CheckBySubject, subject), cr.DaysToCheck)
		if err != nil {
			return Decision{}, err
		}
		if n >= cr.MaxComplaints {
			return block(email, ReasonComplaintThreshold), nil
		}
	}

	return allow(email), nil
}

// subjectFilter returns the subject to match, or nil when the rule does not
// filter by subject or there is no subject to compare.
func (s *Service) subjectFilter(enabled bool, subject string) *string {
	if !enabled || subject == "" {
		return nil
	}
	return &subject
}

func (s *Service) since(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// HasPermanentBounce reports whether the log holds any hard bounce for email.
func (s *Service) HasPermanentBounce(ctx context.Context, email string) (bool, error) {
	n, err := s.store.Count(ctx, domain.NotificationFilter{
		Email:   domain.NormalizeEmail(email),
		Type:    domain.TypeBounce,
		SubType: domain.BouncePermanent,
	})
	if err != nil {
		return false, fmt.Errorf("count permanent bounces: %w", err)
	}
	return n > 0, nil
}

// CountBounces counts bounce notifications for email, optionally restricted
// to an exact subject and to the last days days.
func (s *Service) CountBounces(ctx context.Context, email string, subject *string, days int) (int, error) {
	return s.count(ctx, domain.TypeBounce, email, subject, days)
}

// CountComplaints counts complaint notifications like CountBounces.
func (s *Service) CountComplaints(ctx context.Context, email string, subject *string, days int) (int, error) {
	return s.count(ctx, domain.TypeComplaint, email, subject, days)
}

func (s *Service) count(ctx context.Context, t domain.NotificationType, email string, subject *string, days int) (int, error) {
	n, err := s.store.Count(ctx, domain.NotificationFilter{
		Email:   domain.NormalizeEmail(email),
		Type:    t,
		Subject: subject,
		Since:   s.since(days),
	})
	if err != nil {
		return 0, fmt.Errorf("count %s notifications: %w", t, err)
	}
	return n, nil
}

// Recent returns notifications received in the last days days.
func (s *Service) Recent(ctx context.Context, days, limit int) ([]domain.Notification, error) {
	if days <= 0 {
		days = 30
	}
	return s.ListNotifications(ctx, domain.NotificationFilter{Since: s.since(days), Limit: limit})
}

// ListNotifications returns notifications matching f, newest first.
func (s *Service) ListNotifications(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	f.Email = domain.NormalizeEmail(f.Email)
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Check evaluates every distinct recipient. With the monitor disabled every
// recipient is allowed.
func (s *Service) Check(ctx context.Context, recipients []string, subject string) ([]Decision, error) {
	emails := dedupe(recipients)
	out := make([]Decision, 0, len(emails))
	for _, email := range emails {
		if !s.cfg.Enabled {
			out = append(out, allow(email))
			continue
		}
		d, err := s.decide(ctx, email, subject)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// CheckBeforeSend is the pre-send hook. It returns nil when every recipient
// may receive the message, a *BlockedError for the first refused recipient,
// or the underlying error when eligibility could not be determined. Any
// non-nil result must stop the send.
func (s *Service) CheckBeforeSend(ctx context.Context, recipients []string, subject string) error {
	if !s.cfg.Enabled {
		return nil
	}
	for _, email := range dedupe(recipients) {
		d, err := s.decide(ctx, email, subject)
		if err != nil {
			logger.Error("[monitor] eligibility check failed", "email", email, "error", err)
			return fmt.Errorf("eligibility check for %s: %w", email, err)
		}
		if !d.CanSend {
			logger.Warn("[monitor] send blocked", "email", email, "reason", string(d.Reason), "subject", subject)
			return &BlockedError{Email: email, Reason: d.Reason}
		}
	}
	return nil
}

func (s *Service) decide(ctx context.Context, email, subject string) (Decision, error) {
	d, err := s.Evaluate(ctx, email, subject)
	if err != nil || !d.CanSend || !s.cfg.ValidateBeforeSend {
		return d, err
	}
	return s.validate(ctx, email)
}

// CanSend checks the blacklist and then validates the address. An invalid
// address is added to the blacklist with reason invalid.
func (s *Service) CanSend(ctx context.Context, email string) (Decision, error) {
	email = domain.NormalizeEmail(email)
	blocked, err := s.ledger.IsBlocked(ctx, email)
	if err != nil {
		return Decision{}, fmt.Errorf("check blacklist: %w", err)
	}
	if blocked {
		return block(email, ReasonBlacklisted), nil
	}
	return s.validate(ctx, email)
}

func (s *Service) validate(ctx context.Context, email string) (Decision, error) {
	v := domain.Validation{Valid: true, Status: domain.ValidationDisabled}
	if s.validator != nil {
		var err error
		v, err = s.validator.Validate(ctx, email)
		if err != nil {
			return Decision{}, fmt.Errorf("validate email: %w", err)
		}
	}

	if !v.Valid {
		if _, err := s.ledger.Upsert(ctx, email, domain.ReasonInvalid, map[string]any{
			"zerobounce_status": v.Status,
		}); err != nil {
			return Decision{}, fmt.Errorf("blacklist invalid email: %w", err)
		}
		d := block(email, ReasonInvalidEmail)
		d.Validation = &v
		return d, nil
	}

	d := allow(email)
	d.Validation = &v
	return d, nil
}

// ValidateBatch runs CanSend for each distinct email.
func (s *Service) ValidateBatch(ctx context.Context, emails []string) (map[string]Decision, error) {
	out := make(map[string]Decision, len(emails))
	for _, email := range dedupe(emails) {
		d, err := s.CanSend(ctx, email)
		if err != nil {
			return nil, err
		}
		out[email] = d
	}
	return out, nil
}

func dedupe(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = domain.NormalizeEmail(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
