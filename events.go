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
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

// GetEvent returns one event by id.
func (s *SuiteSync) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.datasource.GetEvent(ctx, id)
}

// ListEvents returns events matching the filter, newest first.
func (s *SuiteSync) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	return s.datasource.GetAllEvents(ctx, filter)
}

// ReplayEvent requeues a failed or dead-lettered event with a fresh retry
// budget. Events in any other state return Conflict.
func (s *SuiteSync) ReplayEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := s.datasource.ReplayEvent(ctx, id); err != nil {
		return nil, err
	}
	event, err := s.datasource.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.datasource.RecordAudit(ctx, &model.AuditLog{
		Action:   "event.replayed",
		EntityID: id,
		Actor:    "admin",
	}); err != nil {
		logrus.WithField("error", err.Error()).Warn("failed to record replay audit entry")
	}
	logrus.WithField("event_id", id).Info("event requeued for replay")
	return event, nil
}

// HealthStatus is the engine-level health snapshot exposed by the API.
type HealthStatus struct {
	Database          string           `json:"database"`
	QueueDepth        int64            `json:"queue_depth"`
	OldestEventAgeSec float64          `json:"oldest_event_age_sec"`
	LastWorkerRunAt   *time.Time       `json:"last_worker_run_at,omitempty"`
	EventCounts       map[string]int64 `json:"event_counts"`
	ConnectionCounts  map[string]int64 `json:"connection_counts"`
}

// Health computes queue depth, oldest queued age, last worker run and status
// breakdowns for events and connections. A failed database ping is reported
// in the snapshot rather than returned as an error.
func (s *SuiteSync) Health(ctx context.Context) (*HealthStatus, error) {
	if err := s.datasource.Ping(ctx); err != nil {
		return &HealthStatus{Database: "error"}, nil
	}
	depth, oldest, err := s.datasource.QueueStats(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	eventCounts, err := s.datasource.CountEventsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	connCounts, err := s.datasource.CountConnectionsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	status := &HealthStatus{
		Database:          "ok",
		QueueDepth:        depth,
		OldestEventAgeSec: oldest.Seconds(),
		EventCounts:       eventCounts,
		ConnectionCounts:  connCounts,
	}
	if lastRun, err := s.datasource.LastAuditByAction(ctx, "worker.completed"); err == nil {
		status.LastWorkerRunAt = &lastRun.CreatedAt
	}
	return status, nil
}

// ResyncRecord fetches the current state of a source record and queues a
// synthetic event for it, bypassing webhook delivery. Used to repair a
// single record that drifted out of sync.
func (s *SuiteSync) ResyncRecord(ctx context.Context, connectionID, recordID string) (*IngressResult, error) {
	conn, err := s.datasource.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive() {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, fmt.Sprintf("Connection %s is not active", conn.ConnectionID), nil)
	}

	sourceKey, err := s.secrets.Decrypt(conn.SourceAPIKey)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decrypt source credential", err)
	}
	record, err := s.smartsuite.GetRecord(ctx, sourceKey, conn.SourceAccountID, conn.SourceTableID, recordID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event_type": model.EventTypeRecordUpdated,
		"record_id":  recordID,
		"data":       map[string]interface{}(record),
	})
	if err != nil {
		return nil, err
	}

	event := &model.Event{
		EventID:        model.GenerateUUIDWithSuffix("evt"),
		ConnectionID:   conn.ConnectionID,
		IdempotencyKey: deriveIdempotencyKey(conn.ConnectionID, recordID, ""),
		EventType:      model.EventTypeRecordUpdated,
		ExternalID:     recordID,
		Payload:        json.RawMessage(payload),
		PayloadHash:    model.HashPayload(payload),
		Status:         model.EventStatusQueued,
		QueuedAt:       time.Now(),
	}
	if err := s.datasource.CreateEvent(ctx, event); err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrConflict {
			if existing, rerr := s.datasource.GetEventByIdempotencyKey(ctx, event.IdempotencyKey); rerr == nil {
				return &IngressResult{EventID: existing.EventID, Status: existing.Status, Duplicate: true}, nil
			}
		}
		return nil, err
	}

	if err := s.datasource.RecordAudit(ctx, &model.AuditLog{
		Action:   "item.resynced",
		EntityID: event.EventID,
		Actor:    "admin",
		Details:  map[string]interface{}{"connection_id": conn.ConnectionID, "record_id": recordID},
	}); err != nil {
		logrus.WithField("error", err.Error()).Warn("failed to record resync audit entry")
	}

	logrus.WithFields(logrus.Fields{
		"event_id":      event.EventID,
		"connection_id": conn.ConnectionID,
		"record_id":     recordID,
	}).Info("queued resync event")
	return &IngressResult{EventID: event.EventID, Status: event.Status}, nil
}
