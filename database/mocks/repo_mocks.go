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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/suitesync/suitesync/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Connection methods

func (m *MockDataSource) CreateConnection(ctx context.Context, conn *model.Connection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *MockDataSource) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *MockDataSource) GetAllConnections(ctx context.Context, filter model.ConnectionFilter) ([]*model.Connection, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Connection), args.Error(1)
}

func (m *MockDataSource) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *MockDataSource) UpdateConnectionStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockDataSource) RecordConnectionSuccess(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockDataSource) RecordConnectionError(ctx context.Context, id string, at time.Time, message string) error {
	args := m.Called(ctx, id, at, message)
	return args.Error(0)
}

func (m *MockDataSource) CountConnectionsByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// Mapping methods

func (m *MockDataSource) CreateMapping(ctx context.Context, mapping *model.Mapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockDataSource) GetActiveMapping(ctx context.Context, connectionID string) (*model.Mapping, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Mapping), args.Error(1)
}

func (m *MockDataSource) GetMapping(ctx context.Context, id string) (*model.Mapping, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Mapping), args.Error(1)
}

func (m *MockDataSource) GetMappingsForConnection(ctx context.Context, connectionID string) ([]*model.Mapping, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Mapping), args.Error(1)
}

// Event methods

func (m *MockDataSource) CreateEvent(ctx context.Context, event *model.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDataSource) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Event), args.Error(1)
}

func (m *MockDataSource) GetEventByIdempotencyKey(ctx context.Context, key string) (*model.Event, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Event), args.Error(1)
}

func (m *MockDataSource) GetAllEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Event), args.Error(1)
}

func (m *MockDataSource) GetDueEvents(ctx context.Context, batchSize int, now time.Time) ([]*model.Event, error) {
	args := m.Called(ctx, batchSize, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Event), args.Error(1)
}

func (m *MockDataSource) UpdateEvent(ctx context.Context, event *model.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDataSource) MarkEventProcessing(ctx context.Context, id string, startedAt time.Time) (int, error) {
	args := m.Called(ctx, id, startedAt)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) ReplayEvent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) QueueStats(ctx context.Context, now time.Time) (int64, time.Duration, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Get(1).(time.Duration), args.Error(2)
}

func (m *MockDataSource) CountEventsByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// IdMap methods

func (m *MockDataSource) CreateIdMap(ctx context.Context, idMap *model.IdMap) error {
	args := m.Called(ctx, idMap)
	return args.Error(0)
}

func (m *MockDataSource) GetIdMap(ctx context.Context, connectionID, externalSource, externalID string) (*model.IdMap, error) {
	args := m.Called(ctx, connectionID, externalSource, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IdMap), args.Error(1)
}

func (m *MockDataSource) GetIdMaps(ctx context.Context, connectionID, externalSource string, externalIDs []string) ([]*model.IdMap, error) {
	args := m.Called(ctx, connectionID, externalSource, externalIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.IdMap), args.Error(1)
}

func (m *MockDataSource) TouchIdMap(ctx context.Context, idMapID string, syncedAt time.Time) error {
	args := m.Called(ctx, idMapID, syncedAt)
	return args.Error(0)
}

// Lock methods

func (m *MockDataSource) AcquireLock(ctx context.Context, lockID, holder string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, lockID, holder, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ReleaseLock(ctx context.Context, lockID, holder string) error {
	args := m.Called(ctx, lockID, holder)
	return args.Error(0)
}

func (m *MockDataSource) ExtendLock(ctx context.Context, lockID, holder string, extra time.Duration) (bool, error) {
	args := m.Called(ctx, lockID, holder, extra)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetLock(ctx context.Context, lockID string) (*model.DistributedLock, error) {
	args := m.Called(ctx, lockID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DistributedLock), args.Error(1)
}

// Audit methods

func (m *MockDataSource) RecordAudit(ctx context.Context, entry *model.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDataSource) LastAuditByAction(ctx context.Context, action string) (*model.AuditLog, error) {
	args := m.Called(ctx, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuditLog), args.Error(1)
}

func (m *MockDataSource) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
