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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

func TestRecordAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	entry := model.AuditLog{
		Action:   "worker.completed",
		EntityID: "worker:ingest",
		Actor:    "scheduler",
		Details:  map[string]interface{}{"processed": 12},
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), entry.Action, entry.EntityID, entry.Actor,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.RecordAudit(context.Background(), &entry)
	assert.NoError(t, err)
	assert.NotEmpty(t, entry.AuditID)
	assert.WithinDuration(t, time.Now(), entry.CreatedAt, time.Second)
}

func TestLastAuditByAction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	createdAt := time.Now().Add(-2 * time.Minute)

	rows := sqlmock.NewRows([]string{"audit_id", "action", "entity_id", "actor", "details", "created_at"}).
		AddRow("aud_1", "worker.completed", "worker:ingest", "scheduler", []byte(`{"processed":12}`), createdAt)
	mock.ExpectQuery("SELECT audit_id, action, entity_id, actor, details, created_at").
		WithArgs("worker.completed").
		WillReturnRows(rows)

	entry, err := ds.LastAuditByAction(context.Background(), "worker.completed")
	assert.NoError(t, err)
	assert.Equal(t, "aud_1", entry.AuditID)
	assert.Equal(t, "scheduler", entry.Actor)
	assert.Equal(t, float64(12), entry.Details["processed"])
	assert.WithinDuration(t, createdAt, entry.CreatedAt, time.Second)
}

func TestLastAuditByAction_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT audit_id, action, entity_id, actor, details, created_at").
		WithArgs("worker.completed").
		WillReturnRows(sqlmock.NewRows([]string{"audit_id", "action", "entity_id", "actor", "details", "created_at"}))

	_, err = ds.LastAuditByAction(context.Background(), "worker.completed")
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}
