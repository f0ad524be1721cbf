package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/service/ledger"
)

// BlacklistRepo implements ledger.Repository in memory. A single mutex
// serializes Upserts, which is enough for one process.
type BlacklistRepo struct {
	mu    sync.Mutex
	store map[string]domain.BlacklistEntry
}

// NewBlacklistRepo creates an empty blacklist.
func NewBlacklistRepo() *BlacklistRepo {
	return &BlacklistRepo{store: make(map[string]domain.BlacklistEntry)}
}

func copyEntry(e domain.BlacklistEntry) domain.BlacklistEntry {
	e.Details = domain.MergeDetails(nil, e.Details)
	return e
}

func (r *BlacklistRepo) Upsert(_ context.Context, email string, mutate ledger.MutateFunc) (*domain.BlacklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var existing *domain.BlacklistEntry
	if e, ok := r.store[email]; ok {
		cp := copyEntry(e)
		existing = &cp
	}
	next := copyEntry(mutate(existing))
	next.Email = email
	r.store[email] = next
	out := copyEntry(next)
	return &out, nil
}

// restore puts back prev, or deletes email when prev is nil.
func (r *BlacklistRepo) restore(email string, prev *domain.BlacklistEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev == nil {
		delete(r.store, email)
		return
	}
	r.store[email] = copyEntry(*prev)
}

func (r *BlacklistRepo) Get(_ context.Context, email string) (*domain.BlacklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.store[email]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := copyEntry(e)
	return &out, nil
}

func (r *BlacklistRepo) Delete(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.store[email]
	delete(r.store, email)
	return ok, nil
}

func (r *BlacklistRepo) List(_ context.Context, f domain.BlacklistFilter) ([]domain.BlacklistEntry, int, error) {
	r.mu.Lock()
	var out []domain.BlacklistEntry
	search := strings.ToLower(f.Search)
	for _, e := range r.store {
		if f.Reason != "" && string(e.Reason) != f.Reason {
			continue
		}
		if search != "" && !strings.Contains(e.Email, search) {
			continue
		}
		out = append(out, copyEntry(e))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastEventAt.Equal(out[j].LastEventAt) {
			return out[i].LastEventAt.After(out[j].LastEventAt)
		}
		return out[i].Email < out[j].Email
	})
	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []domain.BlacklistEntry{}, total, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *BlacklistRepo) CountByReason(_ context.Context) (map[domain.BlacklistReason]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.BlacklistReason]int)
	for _, e := range r.store {
		out[e.Reason]++
	}
	return out, nil
}
