package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/service/ingest"
	"github.com/ignite/ses-guard/internal/service/ledger"
	"github.com/ignite/ses-guard/internal/service/subscription"
)

func TestNotificationRepoDedupe(t *testing.T) {
	r := NewNotificationRepo()
	ctx := context.Background()
	n := &domain.Notification{MessageID: "m1", Type: domain.TypeBounce, Email: "A@x.com", ReceivedAt: time.Now()}

	created, err := r.Create(ctx, n)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	if n.ID == "" {
		t.Error("expected generated ID")
	}
	dup := &domain.Notification{MessageID: "m1", Type: domain.TypeBounce, Email: "a@x.com"}
	if created, _ := r.Create(ctx, dup); created {
		t.Error("duplicate should not be created")
	}
	other := &domain.Notification{MessageID: "m1", Type: domain.TypeComplaint, Email: "a@x.com"}
	if created, _ := r.Create(ctx, other); !created {
		t.Error("different type should be created")
	}
	// Notifications without a message ID are never deduplicated.
	for i := 0; i < 2; i++ {
		if created, _ := r.Create(ctx, &domain.Notification{Type: domain.TypeDelivery, Email: "a@x.com"}); !created {
			t.Error("empty message id should always be created")
		}
	}
	if c, _ := r.Count(ctx, domain.NotificationFilter{Email: "a@x.com"}); c != 4 {
		t.Errorf("count = %d, want 4", c)
	}
}

func TestNotificationRepoRawPayloadCopied(t *testing.T) {
	r := NewNotificationRepo()
	payload := []byte(`{"a":1}`)
	r.Create(context.Background(), &domain.Notification{Type: domain.TypeDelivery, Email: "a@x.com", RawPayload: payload})
	payload[0] = 'X'

	list, _ := r.List(context.Background(), domain.NotificationFilter{})
	if string(list[0].RawPayload) != `{"a":1}` {
		t.Errorf("raw payload mutated: %s", list[0].RawPayload)
	}
}

func TestNotificationRepoListOrderAndPaging(t *testing.T) {
	r := NewNotificationRepo()
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r.Create(ctx, &domain.Notification{Type: domain.TypeBounce, Email: "a@x.com", ReceivedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	list, _ := r.List(ctx, domain.NotificationFilter{Limit: 2, Offset: 1})
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if !list[0].ReceivedAt.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("first = %v, want newest-but-one", list[0].ReceivedAt)
	}
	if list, _ := r.List(ctx, domain.NotificationFilter{Offset: 10}); len(list) != 0 {
		t.Errorf("offset past end returned %d", len(list))
	}
	since, _ := r.Count(ctx, domain.NotificationFilter{Since: base.Add(3 * time.Hour)})
	if since != 2 {
		t.Errorf("since count = %d, want 2", since)
	}
}

func TestBlacklistRepo(t *testing.T) {
	r := NewBlacklistRepo()
	ctx := context.Background()
	now := time.Now()

	for i, email := range []string{"a@x.com", "b@y.com", "c@x.com"} {
		reason := domain.ReasonBounce
		if i == 2 {
			reason = domain.ReasonManual
		}
		ts := now.Add(time.Duration(i) * time.Minute)
		r.Upsert(ctx, email, func(*domain.BlacklistEntry) domain.BlacklistEntry {
			return domain.BlacklistEntry{Reason: reason, OccurrenceCount: 1, LastEventAt: ts}
		})
	}

	got, err := r.Upsert(ctx, "a@x.com", func(e *domain.BlacklistEntry) domain.BlacklistEntry {
		if e == nil {
			t.Fatal("expected existing entry")
		}
		next := *e
		next.OccurrenceCount++
		return next
	})
	if err != nil || got.OccurrenceCount != 2 || got.Email != "a@x.com" {
		t.Fatalf("upsert existing: %+v %v", got, err)
	}

	if _, err := r.Get(ctx, "nobody@x.com"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Get missing: %v", err)
	}

	list, total, _ := r.List(ctx, domain.BlacklistFilter{Search: "X.COM"})
	if total != 2 || list[0].Email != "c@x.com" {
		t.Errorf("search: total=%d first=%v", total, list)
	}
	_, total, _ = r.List(ctx, domain.BlacklistFilter{Reason: "manual"})
	if total != 1 {
		t.Errorf("reason filter total = %d", total)
	}

	counts, _ := r.CountByReason(ctx)
	if counts[domain.ReasonBounce] != 2 || counts[domain.ReasonManual] != 1 {
		t.Errorf("counts = %v", counts)
	}

	if ok, _ := r.Delete(ctx, "b@y.com"); !ok {
		t.Error("delete existing returned false")
	}
	if ok, _ := r.Delete(ctx, "b@y.com"); ok {
		t.Error("delete missing returned true")
	}
}

func TestSubscriptionRepo(t *testing.T) {
	r := NewSubscriptionRepo()
	ctx := context.Background()
	clock := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	r.Upsert(ctx, domain.Subscription{TopicArn: "t1", Category: domain.CategoryBounces, SubscribeURL: "u1"})
	r.Upsert(ctx, domain.Subscription{TopicArn: "t2", Category: domain.CategoryComplaints, SubscribeURL: "u2"})

	at := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	if _, err := r.MarkConfirmed(ctx, "t1", "arn:sub:1", at); err != nil {
		t.Fatal(err)
	}
	// A second confirmation keeps the original timestamp.
	s, _ := r.MarkConfirmed(ctx, "t1", "arn:sub:2", at.Add(time.Hour))
	if !s.ConfirmedAt.Equal(at) || s.SubscriptionArn != "arn:sub:2" {
		t.Errorf("reconfirm: %+v", s)
	}

	// Re-recording a request does not reset confirmation.
	s, _ = r.Upsert(ctx, domain.Subscription{TopicArn: "t1", Category: domain.CategoryBounces, SubscribeURL: "u1b"})
	if !s.IsConfirmed() || s.SubscribeURL != "u1b" {
		t.Errorf("upsert after confirm: %+v", s)
	}

	if _, err := r.MarkConfirmed(ctx, "missing", "x", at); !errors.Is(err, subscription.ErrNotFound) {
		t.Errorf("MarkConfirmed missing: %v", err)
	}

	pending, _ := r.ListPending(ctx, "")
	if len(pending) != 1 || pending[0].TopicArn != "t2" {
		t.Errorf("pending = %+v", pending)
	}
	pending, _ = r.ListPending(ctx, domain.CategoryBounces)
	if len(pending) != 0 {
		t.Errorf("pending bounces = %+v", pending)
	}
}

func TestUnitOfWorkRollsBack(t *testing.T) {
	ctx := context.Background()
	notes, blacklist := NewNotificationRepo(), NewBlacklistRepo()
	uow := NewUnitOfWork(notes, blacklist, ledger.Config{})

	seed := ledger.NewService(blacklist, ledger.Config{})
	if _, err := seed.Upsert(ctx, "soft@x.com", domain.ReasonBounce, map[string]any{"bounce_type": "transient"}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := uow.InTx(ctx, func(w ingest.Writes) error {
		for _, email := range []string{"new@x.com", "soft@x.com"} {
			n := &domain.Notification{MessageID: "m1", Type: domain.TypeBounce, Email: email}
			if _, err := w.Notifications.Create(ctx, n); err != nil {
				return err
			}
			if _, err := w.Ledger.Upsert(ctx, email, domain.ReasonBounce, map[string]any{"bounce_type": "transient"}); err != nil {
				return err
			}
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	if n, _ := notes.Count(ctx, domain.NotificationFilter{}); n != 0 {
		t.Errorf("notifications left after rollback: %d", n)
	}
	if _, err := blacklist.Get(ctx, "new@x.com"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("new entry survived rollback: %v", err)
	}
	e, err := blacklist.Get(ctx, "soft@x.com")
	if err != nil || e.OccurrenceCount != 1 {
		t.Errorf("existing entry not restored: %+v %v", e, err)
	}

	// The dedupe key was released, so the same notification can be stored.
	err = uow.InTx(ctx, func(w ingest.Writes) error {
		created, err := w.Notifications.Create(ctx, &domain.Notification{MessageID: "m1", Type: domain.TypeBounce, Email: "new@x.com"})
		if !created {
			t.Error("expected notification to be created after rollback")
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := notes.Count(ctx, domain.NotificationFilter{}); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestNotificationRepoEmptySubjectDoesNotFilter(t *testing.T) {
	r := NewNotificationRepo()
	ctx := context.Background()
	for _, subj := range []string{"", "Hello"} {
		if _, err := r.Create(ctx, &domain.Notification{Type: domain.TypeBounce, Email: "a@x.com", Subject: subj}); err != nil {
			t.Fatal(err)
		}
	}
	empty, hello := "", "Hello"
	if n, _ := r.Count(ctx, domain.NotificationFilter{Subject: &empty}); n != 2 {
		t.Errorf("empty subject: count = %d, want 2", n)
	}
	if n, _ := r.Count(ctx, domain.NotificationFilter{Subject: &hello}); n != 1 {
		t.Errorf("subject Hello: count = %d, want 1", n)
	}
}
