package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/ses-guard/internal/domain"
)

// NotificationRepo is an append-only in-memory notification log.
type NotificationRepo struct {
	mu    sync.RWMutex
	items []domain.Notification
	keys  map[string]struct{}
}

// NewNotificationRepo creates an empty log.
func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{keys: make(map[string]struct{})}
}

func dedupeKey(n *domain.Notification) string {
	return n.MessageID + "\x00" + n.Email + "\x00" + string(n.Type)
}

// Create appends n unless one with the same message ID, email and type exists.
func (r *NotificationRepo) Create(_ context.Context, n *domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = time.Now().UTC()
	}
	n.Email = domain.NormalizeEmail(n.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if n.MessageID != "" {
		k := dedupeKey(n)
		if _, ok := r.keys[k]; ok {
			return false, nil
		}
		r.keys[k] = struct{}{}
	}
	cp := *n
	cp.RawPayload = append([]byte(nil), n.RawPayload...)
	r.items = append(r.items, cp)
	return true, nil
}

// remove drops the notification with n's ID and releases its dedupe key.
func (r *NotificationRepo) remove(n *domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == n.ID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			break
		}
	}
	if n.MessageID != "" {
		delete(r.keys, dedupeKey(n))
	}
}

// Count returns the number of matching notifications.
func (r *NotificationRepo) Count(_ context.Context, f domain.NotificationFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, it := range r.items {
		if f.Matches(it) {
			n++
		}
	}
	return n, nil
}

// List returns matching notifications, newest first.
func (r *NotificationRepo) List(_ context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	r.mu.RLock()
	var out []domain.Notification
	for _, it := range r.items {
		if f.Matches(it) {
			out = append(out, it)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []domain.Notification{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
