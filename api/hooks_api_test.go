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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/suitesync/suitesync"
	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/database/mocks"
	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/internal/secrets"
	"github.com/suitesync/suitesync/internal/signing"
	"github.com/suitesync/suitesync/model"
	"github.com/suitesync/suitesync/smartsuite"
	"github.com/suitesync/suitesync/webflow"
)

const testWebhookSecret = "whsec_test"

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource, secrets.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.MockConfig(&config.Configuration{
		Worker: config.WorkerConfig{CronSecret: "cron-secret"},
	})

	store, err := secrets.NewStore(strings.Repeat("0", 64))
	require.NoError(t, err)

	ds := new(mocks.MockDataSource)
	s := suitesync.NewSuiteSyncWithDeps(ds, store, webflow.NewClient(), smartsuite.NewClient())
	router := NewAPI(s).Router()
	return router, ds, store
}

func activeConnection(t *testing.T, store secrets.Store) *model.Connection {
	t.Helper()
	secret, err := store.Encrypt(testWebhookSecret)
	require.NoError(t, err)
	return &model.Connection{
		ConnectionID:  "conn_1",
		Status:        model.ConnectionStatusActive,
		WebhookSecret: secret,
	}
}

func TestReceiveWebhookAccepted(t *testing.T) {
	router, ds, store := setupRouter(t)
	conn := activeConnection(t, store)

	body := []byte(`{"record_id":"r1","data":{"title":"Widget"}}`)

	ds.On("GetConnection", mock.Anything, "conn_1").Return(conn, nil)
	ds.On("GetEventByIdempotencyKey", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Event not found", nil))
	ds.On("CreateEvent", mock.Anything, mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/conn_1", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signing.Sign(body, testWebhookSecret))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "queued", payload["status"])
	assert.Contains(t, payload["event_id"], "evt_")
}

func TestReceiveWebhookDuplicate(t *testing.T) {
	router, ds, store := setupRouter(t)
	conn := activeConnection(t, store)

	body := []byte(`{"record_id":"r1"}`)
	existing := &model.Event{EventID: "evt_dup", Status: model.EventStatusSuccess}

	ds.On("GetConnection", mock.Anything, "conn_1").Return(conn, nil)
	ds.On("GetEventByIdempotencyKey", mock.Anything, "idem-1").Return(existing, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/conn_1", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signing.Sign(body, testWebhookSecret))
	req.Header.Set(IdempotencyKeyHeader, "idem-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "Duplicate event", payload["message"])
	assert.Equal(t, "evt_dup", payload["event_id"])
}

func TestReceiveWebhookBadSignature(t *testing.T) {
	router, ds, store := setupRouter(t)
	conn := activeConnection(t, store)

	body := []byte(`{"record_id":"r1"}`)
	ds.On("GetConnection", mock.Anything, "conn_1").Return(conn, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/conn_1", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "sha256=deadbeef")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestReceiveWebhookUnknownConnection(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("GetConnection", mock.Anything, "conn_missing").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Connection not found", nil))

	req := httptest.NewRequest(http.MethodPost, "/hooks/conn_missing", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestTriggerIngestRequiresWorkerAuth(t *testing.T) {
	router, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs/ingest", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestTriggerIngestLockBusyReturns423(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("AcquireLock", mock.Anything, suitesync.IngestLockID, mock.Anything, mock.Anything).Return(false, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs/ingest", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusLocked, resp.Code)
}

func TestHealthReportsQueue(t *testing.T) {
	router, ds, _ := setupRouter(t)

	lastRun := &model.AuditLog{Action: "worker.completed", CreatedAt: time.Now().Add(-time.Minute)}
	ds.On("Ping", mock.Anything).Return(nil)
	ds.On("QueueStats", mock.Anything, mock.Anything).Return(int64(3), 45*time.Second, nil)
	ds.On("CountEventsByStatus", mock.Anything).Return(map[string]int64{"queued": 3}, nil)
	ds.On("CountConnectionsByStatus", mock.Anything).Return(map[string]int64{"active": 2}, nil)
	ds.On("LastAuditByAction", mock.Anything, "worker.completed").Return(lastRun, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var payload suitesync.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload.Database)
	assert.Equal(t, int64(3), payload.QueueDepth)
	assert.Equal(t, float64(45), payload.OldestEventAgeSec)
	assert.Equal(t, int64(2), payload.ConnectionCounts["active"])
	assert.NotNil(t, payload.LastWorkerRunAt)
}

func TestReplayEventNotReplayableConflicts(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("ReplayEvent", mock.Anything, "evt_1").
		Return(apierror.NewAPIError(apierror.ErrConflict, "Event is not in a replayable state", nil))

	req := httptest.NewRequest(http.MethodPost, "/events/evt_1/replay", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestCreateConnectionValidatesPayload(t *testing.T) {
	router, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/connections", bytes.NewReader([]byte(`{"name":"products"}`)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
