package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/service/subscription"
)

// SubscriptionRepo implements subscription.Repository in memory.
type SubscriptionRepo struct {
	mu    sync.Mutex
	store map[string]domain.Subscription
	now   func() time.Time
}

// NewSubscriptionRepo creates an empty registry store.
func NewSubscriptionRepo() *SubscriptionRepo {
	return &SubscriptionRepo{store: make(map[string]domain.Subscription), now: time.Now}
}

func (r *SubscriptionRepo) Upsert(_ context.Context, s domain.Subscription) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	existing, ok := r.store[s.TopicArn]
	if !ok {
		s.SubscriptionArn = ""
		s.ConfirmedAt = nil
		s.CreatedAt = now
		s.UpdatedAt = now
		r.store[s.TopicArn] = s
		return &s, nil
	}
	existing.SubscribeURL = s.SubscribeURL
	existing.Token = s.Token
	existing.Category = s.Category
	existing.UpdatedAt = now
	r.store[s.TopicArn] = existing
	return &existing, nil
}

func (r *SubscriptionRepo) MarkConfirmed(_ context.Context, topicArn, subscriptionArn string, at time.Time) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.store[topicArn]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	s.SubscriptionArn = subscriptionArn
	if s.ConfirmedAt == nil {
		t := at
		s.ConfirmedAt = &t
	}
	s.UpdatedAt = r.now().UTC()
	r.store[topicArn] = s
	return &s, nil
}

func (r *SubscriptionRepo) Get(_ context.Context, topicArn string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.store[topicArn]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return &s, nil
}

func (r *SubscriptionRepo) ListPending(_ context.Context, c domain.SubscriptionCategory) ([]domain.Subscription, error) {
	r.mu.Lock()
	out := []domain.Subscription{}
	for _, s := range r.store {
		if s.ConfirmedAt != nil {
			continue
		}
		if c != "" && s.Category != c {
			continue
		}
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TopicArn < out[j].TopicArn
	})
	return out, nil
}
