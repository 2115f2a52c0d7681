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
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestAcquireLock_Fresh(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("INSERT INTO distributed_locks").
		WithArgs("worker:ingest", "holder-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"holder"}).AddRow("holder-1"))

	ok, err := ds.AcquireLock(context.Background(), "worker:ingest", "holder-1", 5*time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_BusyReturnsFalse(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// a live holder means the conditional upsert returns no row
	mock.ExpectQuery("INSERT INTO distributed_locks").
		WithArgs("worker:ingest", "holder-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	ok, err := ds.AcquireLock(context.Background(), "worker:ingest", "holder-2", 5*time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_ExpiredTakeover(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// the takeover path rewrites the row, returning the new holder
	mock.ExpectQuery("INSERT INTO distributed_locks").
		WithArgs("worker:ingest", "holder-3", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"holder"}).AddRow("holder-3"))

	ok, err := ds.AcquireLock(context.Background(), "worker:ingest", "holder-3", 5*time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLock_OnlyOwnHolder(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM distributed_locks").
		WithArgs("worker:ingest", "holder-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.ReleaseLock(context.Background(), "worker:ingest", "holder-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE distributed_locks").
		WithArgs("worker:ingest", "holder-1", 2*time.Minute).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.ExtendLock(context.Background(), "worker:ingest", "holder-1", 2*time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	// expired or stolen lock extends nothing
	mock.ExpectExec("UPDATE distributed_locks").
		WithArgs("worker:ingest", "holder-1", 2*time.Minute).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = ds.ExtendLock(context.Background(), "worker:ingest", "holder-1", 2*time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)
}
