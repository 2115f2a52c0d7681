package model

import "time"

// DistributedLock is a row in the distributed_locks table. A worker owns the
// lock while holder matches its token and expires_at is in the future; a
// crashed worker's lock is simply taken over once it expires.
type DistributedLock struct {
	LockID     string    `json:"lock_id"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AuditLog records operator-relevant actions: worker runs, replays,
// connection edits, dead-letters.
type AuditLog struct {
	AuditID   string                 `json:"audit_id"`
	Action    string                 `json:"action"`
	EntityID  string                 `json:"entity_id"`
	Actor     string                 `json:"actor,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
