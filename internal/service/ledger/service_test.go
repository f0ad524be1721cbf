package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu    sync.Mutex
	store map[string]domain.BlacklistEntry
	err   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]domain.BlacklistEntry)}
}

func (m *mockRepo) Upsert(_ context.Context, email string, mutate MutateFunc) (*domain.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var existing *domain.BlacklistEntry
	if e, ok := m.store[email]; ok {
		existing = &e
	}
	next := mutate(existing)
	m.store[email] = next
	return &next, nil
}

func (m *mockRepo) Get(_ context.Context, email string) (*domain.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.store[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *mockRepo) Delete(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.store[email]
	delete(m.store, email)
	return ok, nil
}

func (m *mockRepo) List(_ context.Context, f domain.BlacklistFilter) ([]domain.BlacklistEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlacklistEntry
	for _, e := range m.store {
		if f.Reason != "" && string(e.Reason) != f.Reason {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, len(out), nil
}

func (m *mockRepo) CountByReason(_ context.Context) (map[domain.BlacklistReason]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.BlacklistReason]int{}
	for _, e := range m.store {
		out[e.Reason]++
	}
	return out, nil
}

func soft() map[string]any { return map[string]any{domain.DetailBounceType: "soft"} }
func hard() map[string]any { return map[string]any{domain.DetailBounceType: "hard"} }

func TestUpsert_InsertsWithCountOne(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	e, err := svc.Upsert(ctx, "New@Example.com", domain.ReasonBounce, map[string]any{"bounce_type": "transient"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if e.Email != "new@example.com" || e.OccurrenceCount != 1 {
		t.Errorf("entry = %+v", e)
	}
	if e.BounceSeverity != domain.SeveritySoft {
		t.Errorf("severity = %q, want soft", e.BounceSeverity)
	}
}

func TestUpsert_SoftBouncesReachThreshold(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Upsert(ctx, "soft@example.com", domain.ReasonBounce, soft()); err != nil {
			t.Fatal(err)
		}
	}
	blocked, err := svc.IsBlocked(ctx, "soft@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("two soft bounces must not block")
	}

	e, err := svc.Upsert(ctx, "soft@example.com", domain.ReasonBounce, soft())
	if err != nil {
		t.Fatal(err)
	}
	if e.OccurrenceCount != 3 {
		t.Errorf("count = %d, want 3", e.OccurrenceCount)
	}
	blocked, _ = svc.IsBlocked(ctx, "soft@example.com")
	if !blocked {
		t.Error("three soft bounces must block")
	}
}

func TestUpsert_HardBounceBlocksImmediately(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "hard@example.com", domain.ReasonBounce, hard()); err != nil {
		t.Fatal(err)
	}
	blocked, _ := svc.IsBlocked(ctx, "hard@example.com")
	if !blocked {
		t.Error("hard bounce must block")
	}
}

func TestUpsert_SoftBounceKeepsReasonAndSeverity(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	svc.Upsert(ctx, "a@example.com", domain.ReasonComplaint, map[string]any{"complaint_type": "abuse"})
	e, err := svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, map[string]any{"bounce_type": "soft", "diagnostic_code": "4.2.2"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Reason != domain.ReasonComplaint || e.BounceSeverity != domain.SeverityNone {
		t.Errorf("soft bounce overwrote reason/severity: %+v", e)
	}
	if e.OccurrenceCount != 2 {
		t.Errorf("count = %d, want 2", e.OccurrenceCount)
	}
	if e.Details["complaint_type"] != "abuse" || e.Details["diagnostic_code"] != "4.2.2" {
		t.Errorf("details not merged: %v", e.Details)
	}
}

func TestUpsert_HardAfterSoftPreservesCount(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, soft())
	svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, soft())
	e, _ := svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, map[string]any{"bounce_type": "permanent"})

	if e.OccurrenceCount != 3 {
		t.Errorf("count = %d, want 3", e.OccurrenceCount)
	}
	if e.BounceSeverity != domain.SeverityHard {
		t.Errorf("severity = %q, want hard", e.BounceSeverity)
	}
}

func TestUpsert_UpdatesLastEventAt(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, soft())

	svc.now = func() time.Time { return t0.Add(time.Hour) }
	e, _ := svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, soft())

	if !e.LastEventAt.Equal(t0.Add(time.Hour)) || !e.CreatedAt.Equal(t0) {
		t.Errorf("timestamps = %v / %v", e.LastEventAt, e.CreatedAt)
	}
}

func TestIsBlocked_CaseInsensitive(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	svc.Upsert(ctx, "Test@X.com", domain.ReasonManual, nil)
	for _, email := range []string{"test@x.com", "TEST@X.COM", " Test@x.com "} {
		blocked, err := svc.IsBlocked(ctx, email)
		if err != nil || !blocked {
			t.Errorf("IsBlocked(%q) = %v, %v", email, blocked, err)
		}
	}
}

func TestIsBlocked_Reasons(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	tests := []struct {
		entry domain.BlacklistEntry
		want  bool
	}{
		{domain.BlacklistEntry{Reason: domain.ReasonManual, OccurrenceCount: 1}, true},
		{domain.BlacklistEntry{Reason: domain.ReasonInvalid, OccurrenceCount: 1}, true},
		{domain.BlacklistEntry{Reason: domain.ReasonComplaint, OccurrenceCount: 1}, true},
		{domain.BlacklistEntry{Reason: domain.ReasonBounce, BounceSeverity: domain.SeverityHard, OccurrenceCount: 1}, true},
		{domain.BlacklistEntry{Reason: domain.ReasonBounce, BounceSeverity: domain.SeveritySoft, OccurrenceCount: 2}, false},
		{domain.BlacklistEntry{Reason: domain.ReasonBounce, BounceSeverity: domain.SeverityUndetermined, OccurrenceCount: 3}, true},
	}
	for _, tt := range tests {
		if got := svc.Blocks(tt.entry); got != tt.want {
			t.Errorf("Blocks(%+v) = %v, want %v", tt.entry, got, tt.want)
		}
	}
}

func TestIsBlocked_CustomThreshold(t *testing.T) {
	svc := NewService(newMockRepo(), Config{SoftBounceThreshold: 5})
	e := domain.BlacklistEntry{Reason: domain.ReasonBounce, BounceSeverity: domain.SeveritySoft, OccurrenceCount: 4}
	if svc.Blocks(e) {
		t.Error("4 < 5 must not block")
	}
}

func TestIsBlocked_Unknown(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	blocked, err := svc.IsBlocked(context.Background(), "nobody@example.com")
	if err != nil || blocked {
		t.Errorf("IsBlocked = %v, %v", blocked, err)
	}
}

func TestIsBlocked_PropagatesStorageError(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo, Config{})
	if _, err := svc.IsBlocked(context.Background(), "a@example.com"); err == nil {
		t.Error("expected error")
	}
}

func TestRemove_StartsFresh(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, hard())
	removed, err := svc.Remove(ctx, "A@example.com")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	blocked, _ := svc.IsBlocked(ctx, "a@example.com")
	if blocked {
		t.Error("removed email must not be blocked")
	}

	e, _ := svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, soft())
	if e.OccurrenceCount != 1 {
		t.Errorf("count after remove = %d, want 1", e.OccurrenceCount)
	}

	removed, _ = svc.Remove(ctx, "missing@example.com")
	if removed {
		t.Error("Remove of unknown email must report false")
	}
}

func TestUpsert_Validation(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "  ", domain.ReasonManual, nil); !errors.Is(err, ErrEmailRequired) {
		t.Errorf("err = %v, want ErrEmailRequired", err)
	}
	if _, err := svc.Upsert(ctx, "a@example.com", "spam", nil); !errors.Is(err, ErrInvalidReason) {
		t.Errorf("err = %v, want ErrInvalidReason", err)
	}
}

func TestUpsert_ConcurrentIncrementsAreNotLost(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Upsert(ctx, "busy@example.com", domain.ReasonBounce, soft())
		}()
	}
	wg.Wait()

	e, err := svc.Get(ctx, "busy@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if e.OccurrenceCount != n {
		t.Errorf("count = %d, want %d", e.OccurrenceCount, n)
	}
}

func TestGetStats(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()

	svc.Upsert(ctx, "a@example.com", domain.ReasonBounce, hard())
	svc.Upsert(ctx, "b@example.com", domain.ReasonBounce, soft())
	svc.Upsert(ctx, "c@example.com", domain.ReasonComplaint, nil)
	svc.Upsert(ctx, "d@example.com", domain.ReasonManual, nil)

	st, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 4 || st.Bounces != 2 || st.Complaints != 1 || st.Manual != 1 || st.Invalid != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestList_DefaultsLimit(t *testing.T) {
	svc := NewService(newMockRepo(), Config{})
	ctx := context.Background()
	svc.Upsert(ctx, "a@example.com", domain.ReasonManual, nil)
	svc.Upsert(ctx, "b@example.com", domain.ReasonBounce, hard())

	entries, total, err := svc.List(ctx, domain.BlacklistFilter{Reason: "manual"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(entries) != 1 || entries[0].Email != "a@example.com" {
		t.Errorf("entries = %+v total = %d", entries, total)
	}
}
