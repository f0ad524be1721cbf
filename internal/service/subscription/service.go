package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/pkg/distlock"
	"github.com/ignite/ses-guard/internal/pkg/httpretry"
	"github.com/ignite/ses-guard/internal/pkg/logger"
)

const maxConfirmBody = 64 << 10

// Config controls confirmation behavior.
type Config struct {
	AutoConfirm    bool
	ConfirmTimeout time.Duration
}

// Service implements the subscription registry.
type Service struct {
	repo   Repository
	client httpretry.HTTPDoer
	locks  distlock.Factory
	cfg    Config
	now    func() time.Time
}

// NewService creates a registry. client performs the confirmation GET and is
// never retried; locks may be nil for single-process deployments.
func NewService(repo Repository, client httpretry.HTTPDoer, locks distlock.Factory, cfg Config) *Service {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.ConfirmTimeout}
	}
	if locks == nil {
		locks = func(key string) distlock.DistLock { return distlock.NewLocalLock(key) }
	}
	return &Service{repo: repo, client: client, locks: locks, cfg: cfg, now: time.Now}
}

// RecordConfirmationRequest stores the latest subscribe URL and token for a
// topic. Calling it again for the same topic overwrites them.
func (s *Service) RecordConfirmationRequest(ctx context.Context, topicArn, subscribeURL, token string, category domain.SubscriptionCategory) (*domain.Subscription, error) {
	if topicArn == "" || subscribeURL == "" {
		return nil, errors.New("topic ARN and subscribe URL are required")
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	sub, err := s.repo.Upsert(ctx, domain.Subscription{
		TopicArn:     topicArn,
		SubscribeURL: subscribeURL,
		Token:        token,
		Category:     category,
	})
	if err != nil {
		return nil, fmt.Errorf("record subscription: %w", err)
	}
	return sub, nil
}

// Confirm marks a topic confirmed. A second confirmation replaces the
// subscription ARN but keeps the original confirmation time.
func (s *Service) Confirm(ctx context.Context, topicArn, subscriptionArn string) (*domain.Subscription, error) {
	sub, err := s.repo.MarkConfirmed(ctx, topicArn, subscriptionArn, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark subscription confirmed: %w", err)
	}
	return sub, nil
}

// HandleConfirmationRequest records the request and, when auto-confirm is
// on, tries to confirm it right away. A failed confirmation is logged and
// leaves the subscription pending; only storage errors are returned.
func (s *Service) HandleConfirmationRequest(ctx context.Context, topicArn, subscribeURL, token string, category domain.SubscriptionCategory) (*domain.Subscription, error) {
	sub, err := s.RecordConfirmationRequest(ctx, topicArn, subscribeURL, token, category)
	if err != nil {
		return nil, err
	}
	if !s.cfg.AutoConfirm {
		logger.Info("[subscription] confirmation pending", "topic_arn", topicArn, "category", string(category))
		return sub, nil
	}

	confirmed, err := s.AutoConfirm(ctx, *sub)
	var ce *ConfirmationError
	switch {
	case err == nil:
		return confirmed, nil
	case errors.As(err, &ce), errors.Is(err, ErrInProgress):
		logger.Error("[subscription] failed to confirm SNS subscription", "topic_arn", topicArn, "error", err)
		return sub, nil
	default:
		return nil, err
	}
}

// ConfirmPending re-attempts confirmation for a stored topic.
func (s *Service) ConfirmPending(ctx context.Context, topicArn string) (*domain.Subscription, error) {
	sub, err := s.repo.Get(ctx, topicArn)
	if err != nil {
		return nil, err
	}
	return s.AutoConfirm(ctx, *sub)
}

// AutoConfirm fetches the subscribe URL once and marks the subscription
// confirmed if the response carries a subscription ARN.
func (s *Service) AutoConfirm(ctx context.Context, sub domain.Subscription) (*domain.Subscription, error) {
	lock := s.locks("confirm:" + sub.TopicArn)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, &ConfirmationError{TopicArn: sub.TopicArn, Err: err}
	}
	if !ok {
		return nil, ErrInProgress
	}
	defer lock.Release(context.WithoutCancel(ctx))

	arn, err := s.fetch(ctx, sub.SubscribeURL)
	if err != nil {
		return nil, &ConfirmationError{TopicArn: sub.TopicArn, Err: err}
	}

	confirmed, err := s.Confirm(ctx, sub.TopicArn, arn)
	if err != nil {
		return nil, err
	}
	logger.Info("[subscription] SNS subscription confirmed", "topic_arn", sub.TopicArn, "subscription_arn", arn)
	return confirmed, nil
}

func (s *Service) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfirmBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	arn := parseSubscriptionArn(body)
	if arn == "" {
		return "", errors.New("response has no subscription ARN")
	}
	return arn, nil
}

// ListPending returns unconfirmed subscriptions. An empty category lists all.
func (s *Service) ListPending(ctx context.Context, category domain.SubscriptionCategory) ([]domain.Subscription, error) {
	if category != "" && !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return s.repo.ListPending(ctx, category)
}
