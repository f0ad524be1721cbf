package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/ses-guard/internal/domain"
)

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NotificationRepo implements the notification log against PostgreSQL.
type NotificationRepo struct{ db querier }

// NewNotificationRepo creates a Postgres-backed notification log.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts n. Rows with an existing (message_id, email, type) are
// skipped and reported as not created. NULL message IDs never conflict.
func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = time.Now().UTC()
	}
	n.Email = domain.NormalizeEmail(n.Email)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ses_notifications
			(id, message_id, type, sub_type, bounce_sub_type, email, subject, raw_payload, sent_at, received_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, $10)
		ON CONFLICT (message_id, email, type) DO NOTHING
	`, n.ID, n.MessageID, string(n.Type), n.SubType, n.BounceSubType, n.Email, n.Subject, n.RawPayload, n.SentAt, n.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return affected > 0, nil
}

// whereClause renders f as a WHERE clause plus its positional arguments.
func whereClause(f domain.NotificationFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Email != "" {
		add("email = $%d", domain.NormalizeEmail(f.Email))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.SubType != "" {
		add("sub_type = $%d", f.SubType)
	}
	if f.HasSubject() {
		add("subject = $%d", *f.Subject)
	}
	if !f.Since.IsZero() {
		add("received_at >= $%d", f.Since)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *NotificationRepo) Count(ctx context.Context, f domain.NotificationFilter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ses_notifications`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	where, args := whereClause(f)
	q := `SELECT id, COALESCE(message_id, ''), type, sub_type, COALESCE(bounce_sub_type, ''), email,
		COALESCE(subject, ''), raw_payload, sent_at, received_at
		FROM ses_notifications` + where + ` ORDER BY received_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var (
			n      domain.Notification
			typ    string
			sentAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.MessageID, &typ, &n.SubType, &n.BounceSubType, &n.Email,
			&n.Subject, &n.RawPayload, &sentAt, &n.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = domain.NotificationType(typ)
		if sentAt.Valid {
			t := sentAt.Time
			n.SentAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
