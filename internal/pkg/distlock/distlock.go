package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory builds a fresh lock for a key.
type Factory func(key string) DistLock

// NewFactory returns a Factory using the best available backend.
// Redis is preferred for cross-host locking, then PostgreSQL advisory locks.
// With neither, locks always succeed (single-process deployments).
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	return func(key string) DistLock {
		return NewLock(redisClient, db, key, ttl)
	}
}

// NewLock creates a distributed lock using the best available backend.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	if db != nil {
		return NewPGAdvisoryLock(db, key)
	}
	return NewLocalLock(key)
}

// AdvisoryKey maps a string key to a PostgreSQL advisory lock id.
func AdvisoryKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// LockTx takes a transaction-scoped advisory lock for key. It blocks until
// the lock is granted and is released automatically on commit or rollback.
func LockTx(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", AdvisoryKey(key)); err != nil {
		return fmt.Errorf("failed to take advisory lock: %w", err)
	}
	return nil
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock / pg_advisory_unlock are session-scoped, so the lock
// pins one pooled connection from Acquire until Release. The lock is released
// automatically if that connection drops.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	return &PGAdvisoryLock{
		db:     db,
		lockID: AdvisoryKey(key),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
// Uses pg_try_advisory_lock which returns immediately (non-blocking).
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// =============================================================================
// In-process lock
// =============================================================================

var (
	localMu   sync.Mutex
	localHeld = map[string]bool{}
)

// LocalLock is a non-blocking in-process lock keyed by name.
type LocalLock struct {
	key  string
	held bool
}

// NewLocalLock creates an in-process lock for key.
func NewLocalLock(key string) *LocalLock {
	return &LocalLock{key: key}
}

// Acquire marks the key held. It fails if another LocalLock holds it.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	localMu.Lock()
	defer localMu.Unlock()
	if localHeld[l.key] {
		return false, nil
	}
	localHeld[l.key] = true
	l.held = true
	return true, nil
}

// Release frees the key if this lock holds it.
func (l *LocalLock) Release(ctx context.Context) error {
	if !l.held {
		return errors.New("distlock: lock not held")
	}
	localMu.Lock()
	delete(localHeld, l.key)
	localMu.Unlock()
	l.held = false
	return nil
}
