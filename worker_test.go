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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/suitesync/suitesync/database/mocks"
	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

func TestRunIngestBatchLockBusy(t *testing.T) {
	ds := new(mocks.MockDataSource)
	s := newTestSync(t, ds)

	ds.On("AcquireLock", mock.Anything, IngestLockID, mock.Anything, mock.Anything).Return(false, nil)

	_, err := s.RunIngestBatch(context.Background())
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrLocked, apiErr.Code)
	ds.AssertNotCalled(t, "GetDueEvents", mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "ReleaseLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunIngestBatchEmptyQueue(t *testing.T) {
	ds := new(mocks.MockDataSource)
	s := newTestSync(t, ds)

	ds.On("AcquireLock", mock.Anything, IngestLockID, mock.Anything, mock.Anything).Return(true, nil)
	ds.On("GetDueEvents", mock.Anything, 25, mock.Anything).Return([]*model.Event{}, nil)
	ds.On("QueueStats", mock.Anything, mock.Anything).Return(int64(0), time.Duration(0), nil)
	ds.On("RecordAudit", mock.Anything, mock.MatchedBy(func(a *model.AuditLog) bool {
		return a.Action == "worker.completed"
	})).Return(nil)
	ds.On("ReleaseLock", mock.Anything, IngestLockID, mock.Anything).Return(nil)

	result, err := s.RunIngestBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	ds.AssertExpectations(t)
}

func TestRunIngestBatchReleasesLockOnError(t *testing.T) {
	ds := new(mocks.MockDataSource)
	s := newTestSync(t, ds)

	ds.On("AcquireLock", mock.Anything, IngestLockID, mock.Anything, mock.Anything).Return(true, nil)
	ds.On("GetDueEvents", mock.Anything, 25, mock.Anything).Return(nil, errors.New("db down"))
	ds.On("ReleaseLock", mock.Anything, IngestLockID, mock.Anything).Return(nil)

	_, err := s.RunIngestBatch(context.Background())
	require.Error(t, err)
	ds.AssertCalled(t, "ReleaseLock", mock.Anything, IngestLockID, mock.Anything)
}

func TestRunIngestBatchCountsOutcomes(t *testing.T) {
	ds := new(mocks.MockDataSource)
	s := newTestSync(t, ds)

	events := []*model.Event{
		{EventID: "evt_ok", ConnectionID: "conn_1"},
		{EventID: "evt_bad", ConnectionID: "conn_1"},
	}

	ds.On("AcquireLock", mock.Anything, IngestLockID, mock.Anything, mock.Anything).Return(true, nil)
	ds.On("GetDueEvents", mock.Anything, 25, mock.Anything).Return(events, nil)
	// evt_ok fails before the pipeline even starts, evt_bad too: both load
	// errors count as failures without aborting the batch.
	ds.On("GetEvent", mock.Anything, "evt_ok").Return(nil, errors.New("gone"))
	ds.On("GetEvent", mock.Anything, "evt_bad").Return(nil, errors.New("gone"))
	ds.On("QueueStats", mock.Anything, mock.Anything).Return(int64(2), 90*time.Second, nil)
	ds.On("RecordAudit", mock.Anything, mock.Anything).Return(nil)
	ds.On("ReleaseLock", mock.Anything, IngestLockID, mock.Anything).Return(nil)

	result, err := s.RunIngestBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, int64(2), result.QueueDepth)
	assert.Equal(t, 90*time.Second, result.OldestEventAge)
}

func TestLockManagerHolderTokensDiffer(t *testing.T) {
	ds := new(mocks.MockDataSource)
	m := NewLockManager(ds)

	var holders []string
	ds.On("AcquireLock", mock.Anything, "lk", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			holders = append(holders, args.String(2))
		}).Return(true, nil)

	_, ok, err := m.Acquire(context.Background(), "lk", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = m.Acquire(context.Background(), "lk", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, holders[0], holders[1])
}
