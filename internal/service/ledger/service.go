package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
)

// DefaultSoftBounceThreshold is the soft bounce count at which an address is blocked.
const DefaultSoftBounceThreshold = 3

// Config holds ledger policy.
type Config struct {
	SoftBounceThreshold int
}

// Service implements the ledger policy. It is safe for concurrent use.
type Service struct {
	repo      Repository
	threshold int
	now       func() time.Time
}

// NewService creates a ledger service backed by the given repository.
func NewService(repo Repository, cfg Config) *Service {
	if cfg.SoftBounceThreshold <= 0 {
		cfg.SoftBounceThreshold = DefaultSoftBounceThreshold
	}
	return &Service{repo: repo, threshold: cfg.SoftBounceThreshold, now: time.Now}
}

// SoftBounceThreshold returns the configured threshold.
func (s *Service) SoftBounceThreshold() int { return s.threshold }

// Upsert records a blacklist-triggering event for email.
//
// A new email gets a row with count 1. A soft bounce on an existing row only
// increments the count and merges details. Anything else also overwrites the
// reason and severity.
func (s *Service) Upsert(ctx context.Context, email string, reason domain.BlacklistReason, details map[string]any) (*domain.BlacklistEntry, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	now := s.now().UTC()
	severity := domain.SeverityFromDetails(details)

	entry, err := s.repo.Upsert(ctx, email, func(existing *domain.BlacklistEntry) domain.BlacklistEntry {
		return Apply(existing, email, reason, severity, details, now)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert blacklist entry: %w", err)
	}
	return entry, nil
}

// Apply is the ledger update policy as a pure function.
func Apply(existing *domain.BlacklistEntry, email string, reason domain.BlacklistReason, severity domain.BounceSeverity, details map[string]any, now time.Time) domain.BlacklistEntry {
	if existing == nil {
		return domain.BlacklistEntry{
			Email:           email,
			Reason:          reason,
			BounceSeverity:  severity,
			OccurrenceCount: 1,
			Details:         domain.MergeDetails(nil, details),
			LastEventAt:     now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	next := *existing
	next.Details = domain.MergeDetails(domain.MergeDetails(nil, existing.Details), details)
	next.OccurrenceCount++
	next.LastEventAt = now
	next.UpdatedAt = now
	if reason == domain.ReasonBounce && severity == domain.SeveritySoft {
		return next
	}
	next.Reason = reason
	next.BounceSeverity = severity
	return next
}

// IsBlocked reports whether email must not receive mail.
func (s *Service) IsBlocked(ctx context.Context, email string) (bool, error) {
	entry, err := s.Get(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.Blocks(*entry), nil
}

// Blocks applies the blocking rule to an entry.
func (s *Service) Blocks(e domain.BlacklistEntry) bool {
	switch e.Reason {
	case domain.ReasonManual, domain.ReasonInvalid, domain.ReasonComplaint:
		return true
	}
	if e.BounceSeverity == domain.SeverityHard {
		return true
	}
	return e.OccurrenceCount >= s.threshold
}

// Get returns the entry for email.
func (s *Service) Get(ctx context.Context, email string) (*domain.BlacklistEntry, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	return s.repo.Get(ctx, email)
}

// Remove whitelists email by deleting its row. A later Upsert starts over at 1.
func (s *Service) Remove(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, ErrEmailRequired
	}
	return s.repo.Delete(ctx, email)
}

// List returns entries matching the filter.
func (s *Service) List(ctx context.Context, filter domain.BlacklistFilter) ([]domain.BlacklistEntry, int, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// Stats is the blacklist size overall and per reason.
type Stats struct {
	Total      int `json:"total"`
	Bounces    int `json:"bounces"`
	Complaints int `json:"complaints"`
	Invalid    int `json:"invalid"`
	Manual     int `json:"manual"`
}

// GetStats computes blacklist statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByReason(ctx)
	if err != nil {
		return nil, fmt.Errorf("count blacklist: %w", err)
	}
	st := &Stats{
		Bounces:    counts[domain.ReasonBounce],
		Complaints: counts[domain.ReasonComplaint],
		Invalid:    counts[domain.ReasonInvalid],
		Manual:     counts[domain.ReasonManual],
	}
	for _, n := range counts {
		st.Total += n
	}
	return st, nil
}
