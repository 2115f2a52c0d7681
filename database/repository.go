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

package database

import (
	"context"
	"time"

	"github.com/suitesync/suitesync/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	connection
	mapping
	event
	idMap
	lock
	audit

	Ping(ctx context.Context) error
}

// connection defines methods for handling sync connections.
type connection interface {
	CreateConnection(ctx context.Context, conn *model.Connection) error
	GetConnection(ctx context.Context, id string) (*model.Connection, error)
	GetAllConnections(ctx context.Context, filter model.ConnectionFilter) ([]*model.Connection, error)
	UpdateConnection(ctx context.Context, conn *model.Connection) error
	UpdateConnectionStatus(ctx context.Context, id, status string) error
	RecordConnectionSuccess(ctx context.Context, id string, at time.Time) error // clears consecutive errors
	RecordConnectionError(ctx context.Context, id string, at time.Time, message string) error
	CountConnectionsByStatus(ctx context.Context) (map[string]int64, error)
}

// mapping defines methods for handling versioned field-mapping documents.
type mapping interface {
	CreateMapping(ctx context.Context, mapping *model.Mapping) error // deactivates prior versions atomically
	GetActiveMapping(ctx context.Context, connectionID string) (*model.Mapping, error)
	GetMapping(ctx context.Context, id string) (*model.Mapping, error)
	GetMappingsForConnection(ctx context.Context, connectionID string) ([]*model.Mapping, error)
}

// event defines methods for the durable event store.
type event interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	GetEventByIdempotencyKey(ctx context.Context, key string) (*model.Event, error)
	GetAllEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)
	GetDueEvents(ctx context.Context, batchSize int, now time.Time) ([]*model.Event, error)
	UpdateEvent(ctx context.Context, event *model.Event) error
	MarkEventProcessing(ctx context.Context, id string, startedAt time.Time) (int, error) // returns new attempts count
	ReplayEvent(ctx context.Context, id string) error                                     // failed/dead_letter -> queued, resets attempts
	QueueStats(ctx context.Context, now time.Time) (depth int64, oldestAge time.Duration, err error)
	CountEventsByStatus(ctx context.Context) (map[string]int64, error)
}

// idMap defines methods for the source-to-target cross-reference.
type idMap interface {
	CreateIdMap(ctx context.Context, m *model.IdMap) error
	GetIdMap(ctx context.Context, connectionID, externalSource, externalID string) (*model.IdMap, error)
	GetIdMaps(ctx context.Context, connectionID, externalSource string, externalIDs []string) ([]*model.IdMap, error)
	TouchIdMap(ctx context.Context, idMapID string, syncedAt time.Time) error
}

// lock defines the storage primitive behind the distributed lock manager.
type lock interface {
	AcquireLock(ctx context.Context, lockID, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockID, holder string) error
	ExtendLock(ctx context.Context, lockID, holder string, extra time.Duration) (bool, error)
	GetLock(ctx context.Context, lockID string) (*model.DistributedLock, error)
}

// audit defines the audit sink. Entries are append-only; the single read
// path serves the health check.
type audit interface {
	RecordAudit(ctx context.Context, entry *model.AuditLog) error
	LastAuditByAction(ctx context.Context, action string) (*model.AuditLog, error)
}
