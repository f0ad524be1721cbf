package memory

import (
	"context"
	"sync"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/service/ingest"
	"github.com/ignite/ses-guard/internal/service/ledger"
)

// UnitOfWork implements ingest.Transactor over the in-memory repositories.
// Units run one at a time; a failed unit undoes its writes in reverse order.
type UnitOfWork struct {
	mu            sync.Mutex
	notifications *NotificationRepo
	blacklist     *BlacklistRepo
	ledger        ledger.Config
}

// NewUnitOfWork binds the notification log and the blacklist. cfg is the
// ledger policy applied inside each unit.
func NewUnitOfWork(notifications *NotificationRepo, blacklist *BlacklistRepo, cfg ledger.Config) *UnitOfWork {
	return &UnitOfWork{notifications: notifications, blacklist: blacklist, ledger: cfg}
}

func (u *UnitOfWork) InTx(ctx context.Context, fn func(w ingest.Writes) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	var undo []func()
	w := ingest.Writes{
		Notifications: &txNotifications{repo: u.notifications, undo: &undo},
		Ledger:        ledger.NewService(&txBlacklist{BlacklistRepo: u.blacklist, undo: &undo}, u.ledger),
	}
	if err := fn(w); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

type txNotifications struct {
	repo *NotificationRepo
	undo *[]func()
}

func (t *txNotifications) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	created, err := t.repo.Create(ctx, n)
	if err == nil && created {
		cp := *n
		*t.undo = append(*t.undo, func() { t.repo.remove(&cp) })
	}
	return created, err
}

// txBlacklist records the prior state of every upserted email.
type txBlacklist struct {
	*BlacklistRepo
	undo *[]func()
}

func (t *txBlacklist) Upsert(ctx context.Context, email string, mutate ledger.MutateFunc) (*domain.BlacklistEntry, error) {
	var prev *domain.BlacklistEntry
	out, err := t.BlacklistRepo.Upsert(ctx, email, func(existing *domain.BlacklistEntry) domain.BlacklistEntry {
		if existing != nil {
			cp := copyEntry(*existing)
			prev = &cp
		}
		return mutate(existing)
	})
	if err == nil {
		*t.undo = append(*t.undo, func() { t.BlacklistRepo.restore(email, prev) })
	}
	return out, err
}
