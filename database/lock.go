package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

// AcquireLock inserts the lock row, or atomically takes over an expired one.
// The ON CONFLICT update only fires when the existing row has expired, so a
// live holder can never be displaced; no-row-returned means the lock is
// busy.
func (d Datasource) AcquireLock(ctx context.Context, lockID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	var got string
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO distributed_locks (lock_id, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lock_id) DO UPDATE
		SET holder = EXCLUDED.holder,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE distributed_locks.expires_at < $3
		RETURNING holder
	`, lockID, holder, now, expiresAt).Scan(&got)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire lock", err)
	}
	return got == holder, nil
}

// ReleaseLock deletes the row only while this holder still owns it. A stale
// release after an expiry takeover is a silent no-op.
func (d Datasource) ReleaseLock(ctx context.Context, lockID, holder string) error {
	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM distributed_locks WHERE lock_id = $1 AND holder = $2
	`, lockID, holder)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release lock", err)
	}
	return nil
}

// ExtendLock pushes the expiry forward if still owned.
func (d Datasource) ExtendLock(ctx context.Context, lockID, holder string, extra time.Duration) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE distributed_locks
		SET expires_at = expires_at + $3
		WHERE lock_id = $1 AND holder = $2 AND expires_at > NOW()
	`, lockID, holder, extra)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to extend lock", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (d Datasource) GetLock(ctx context.Context, lockID string) (*model.DistributedLock, error) {
	l := model.DistributedLock{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT lock_id, holder, acquired_at, expires_at
		FROM distributed_locks
		WHERE lock_id = $1
	`, lockID).Scan(&l.LockID, &l.Holder, &l.AcquiredAt, &l.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Lock not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve lock", err)
	}
	return &l, nil
}
