package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/ses-guard/internal/service/ingest"
	"github.com/ignite/ses-guard/internal/service/ledger"
)

// UnitOfWork implements ingest.Transactor: the notification insert and the
// blacklist upsert share one transaction.
type UnitOfWork struct {
	db     *sql.DB
	ledger ledger.Config
}

// NewUnitOfWork creates a transactor. cfg is the ledger policy applied
// inside each transaction.
func NewUnitOfWork(db *sql.DB, cfg ledger.Config) *UnitOfWork {
	return &UnitOfWork{db: db, ledger: cfg}
}

func (u *UnitOfWork) InTx(ctx context.Context, fn func(w ingest.Writes) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingest tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = fn(ingest.Writes{
		Notifications: &NotificationRepo{db: tx},
		Ledger:        ledger.NewService(&BlacklistRepo{db: u.db, tx: tx}, u.ledger),
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest tx: %w", err)
	}
	return nil
}
