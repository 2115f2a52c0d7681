/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package suitesync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/suitesync/suitesync/database"
)

// IngestLockID is the storage row guarding the batch scheduler: at most one
// worker run holds it at a time across all instances.
const IngestLockID = "worker:ingest"

// LockManager hands out storage-backed distributed locks with randomly
// generated holder tokens, so a release by a stale holder never clobbers a
// lock taken over after expiry.
type LockManager struct {
	datasource database.IDataSource
}

func NewLockManager(db database.IDataSource) *LockManager {
	return &LockManager{datasource: db}
}

// Lock is a held lock bound to its holder token. Release and Extend are
// no-ops for any other holder.
type Lock struct {
	manager *LockManager
	LockID  string
	Holder  string
}

// Acquire attempts to take lockID for ttl. It returns (nil, false, nil) when
// another live holder has the lock.
func (m *LockManager) Acquire(ctx context.Context, lockID string, ttl time.Duration) (*Lock, bool, error) {
	holder := uuid.New().String()
	acquired, err := m.datasource.AcquireLock(ctx, lockID, holder, ttl)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	logrus.WithFields(logrus.Fields{
		"lock_id": lockID,
		"holder":  holder,
		"ttl":     ttl.String(),
	}).Info("acquired lock")
	return &Lock{manager: m, LockID: lockID, Holder: holder}, true, nil
}

// Release frees the lock if this holder still owns it. A stale release is
// logged and otherwise ignored.
func (l *Lock) Release(ctx context.Context) {
	if err := l.manager.datasource.ReleaseLock(ctx, l.LockID, l.Holder); err != nil {
		logrus.WithFields(logrus.Fields{
			"lock_id": l.LockID,
			"holder":  l.Holder,
			"error":   err.Error(),
		}).Warn("failed to release lock")
	}
}

// Extend pushes the expiry out by ttl. It returns false when the lock has
// already expired or been taken over, in which case the caller should stop
// assuming exclusivity.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.manager.datasource.ExtendLock(ctx, l.LockID, l.Holder, ttl)
}
