package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/pkg/distlock"
	"github.com/ignite/ses-guard/internal/service/ledger"
)

// BlacklistRepo implements ledger.Repository against PostgreSQL. A repo
// bound to a transaction by UnitOfWork writes through it and never commits.
type BlacklistRepo struct {
	db *sql.DB
	tx *sql.Tx
}

// NewBlacklistRepo creates a Postgres-backed blacklist.
func NewBlacklistRepo(db *sql.DB) *BlacklistRepo { return &BlacklistRepo{db: db} }

func (r *BlacklistRepo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const blacklistColumns = `email, reason, bounce_severity, occurrence_count, details, last_event_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*domain.BlacklistEntry, error) {
	var (
		e       domain.BlacklistEntry
		reason  string
		sev     string
		details []byte
	)
	if err := s.Scan(&e.Email, &reason, &sev, &e.OccurrenceCount, &details, &e.LastEventAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Reason = domain.BlacklistReason(reason)
	e.BounceSeverity = domain.BounceSeverity(sev)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	return &e, nil
}

// Upsert serializes writers for one email with a transaction-scoped
// advisory lock, then reads, mutates and writes the row.
func (r *BlacklistRepo) Upsert(ctx context.Context, email string, mutate ledger.MutateFunc) (*domain.BlacklistEntry, error) {
	if r.tx != nil {
		return upsertEntry(ctx, r.tx, email, mutate)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	out, err := upsertEntry(ctx, tx, email, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return out, nil
}

func upsertEntry(ctx context.Context, tx *sql.Tx, email string, mutate ledger.MutateFunc) (*domain.BlacklistEntry, error) {
	if err := distlock.LockTx(ctx, tx, "blacklist:"+email); err != nil {
		return nil, err
	}

	existing, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT `+blacklistColumns+` FROM email_blacklist WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		existing = nil
	} else if err != nil {
		return nil, fmt.Errorf("load blacklist entry: %w", err)
	}

	next := mutate(existing)
	next.Email = email
	details, err := json.Marshal(domain.MergeDetails(nil, next.Details))
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}

	if existing == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO email_blacklist (`+blacklistColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, next.Email, string(next.Reason), string(next.BounceSeverity), next.OccurrenceCount, details,
			next.LastEventAt, next.CreatedAt, next.UpdatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE email_blacklist
			SET reason = $2, bounce_severity = $3, occurrence_count = $4, details = $5,
				last_event_at = $6, updated_at = $7
			WHERE email = $1
		`, next.Email, string(next.Reason), string(next.BounceSeverity), next.OccurrenceCount, details,
			next.LastEventAt, next.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("write blacklist entry: %w", err)
	}
	return &next, nil
}

func (r *BlacklistRepo) Get(ctx context.Context, email string) (*domain.BlacklistEntry, error) {
	e, err := scanEntry(r.q().QueryRowContext(ctx,
		`SELECT `+blacklistColumns+` FROM email_blacklist WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blacklist entry: %w", err)
	}
	return e, nil
}

func (r *BlacklistRepo) Delete(ctx context.Context, email string) (bool, error) {
	res, err := r.q().ExecContext(ctx, `DELETE FROM email_blacklist WHERE email = $1`, email)
	if err != nil {
		return false, fmt.Errorf("delete blacklist entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *BlacklistRepo) List(ctx context.Context, f domain.BlacklistFilter) ([]domain.BlacklistEntry, int, error) {
	var conds []string
	var args []any
	if f.Reason != "" {
		args = append(args, f.Reason)
		conds = append(conds, fmt.Sprintf("reason = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		conds = append(conds, fmt.Sprintf("email LIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM email_blacklist`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blacklist: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	args = append(args, limit, f.Offset)
	rows, err := r.q().QueryContext(ctx,
		`SELECT `+blacklistColumns+` FROM email_blacklist`+where+
			fmt.Sprintf(` ORDER BY last_event_at DESC, email LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	out := []domain.BlacklistEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan blacklist entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

func (r *BlacklistRepo) CountByReason(ctx context.Context) (map[domain.BlacklistReason]int, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT reason, COUNT(*) FROM email_blacklist GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("count by reason: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.BlacklistReason]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[domain.BlacklistReason(reason)] = n
	}
	return out, rows.Err()
}
