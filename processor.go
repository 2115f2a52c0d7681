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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/internal/executor"
	"github.com/suitesync/suitesync/mapper"
	"github.com/suitesync/suitesync/model"
)

var tracer = otel.Tracer("Process event")

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// syncSettings are the throughput and retry knobs for one event, resolved
// from the connection row with the configured defaults filling any
// zero-valued setting.
type syncSettings struct {
	rateLimitPerMin  int
	maxRetryAttempts int
	baseBackoff      time.Duration
	maxBackoff       time.Duration
	callTimeout      time.Duration
}

func resolveSyncSettings(conn *model.Connection, conf *config.Configuration) syncSettings {
	s := syncSettings{
		rateLimitPerMin:  conn.RateLimitPerMin,
		maxRetryAttempts: conn.MaxRetryAttempts,
		baseBackoff:      time.Duration(conn.RetryBackoffMs) * time.Millisecond,
		maxBackoff:       time.Duration(conn.MaxRetryBackoffMs) * time.Millisecond,
		callTimeout:      time.Duration(conf.Sync.CallTimeoutSec) * time.Second,
	}
	if s.rateLimitPerMin <= 0 {
		s.rateLimitPerMin = conf.Sync.WriteCapPerMinute
	}
	if s.maxRetryAttempts <= 0 {
		s.maxRetryAttempts = conf.Sync.MaxRetryAttempts
	}
	if s.baseBackoff <= 0 {
		s.baseBackoff = time.Duration(conf.Sync.RetryBackoffMs) * time.Millisecond
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = time.Duration(conf.Sync.MaxRetryBackoffMs) * time.Millisecond
	}
	return s
}

// ProcessEvent runs one event through the full pipeline: mapping,
// validation, rate-limited upsert, terminal bookkeeping. The returned error
// reflects the terminal outcome; the event row has already been updated by
// the time it returns.
func (s *SuiteSync) ProcessEvent(ctx context.Context, eventID string) error {
	ctx, span := tracer.Start(ctx, "Processing event")
	defer span.End()

	event, err := s.datasource.GetEvent(ctx, eventID)
	if err != nil {
		return logAndRecordError(span, "failed to fetch event: ", err)
	}
	conn, err := s.datasource.GetConnection(ctx, event.ConnectionID)
	if err != nil {
		return logAndRecordError(span, "failed to fetch connection: ", err)
	}

	attempts, err := s.datasource.MarkEventProcessing(ctx, event.EventID, time.Now())
	if err != nil {
		return logAndRecordError(span, "failed to mark event processing: ", err)
	}
	event.Status = model.EventStatusProcessing
	event.Attempts = attempts

	conf, err := config.Fetch()
	if err != nil {
		return logAndRecordError(span, "failed to fetch configuration: ", err)
	}
	settings := resolveSyncSettings(conn, conf)

	if err := s.runPipeline(ctx, event, conn, settings); err != nil {
		span.RecordError(err)
		return s.handleError(ctx, event, conn, settings, err)
	}
	return nil
}

func (s *SuiteSync) runPipeline(ctx context.Context, event *model.Event, conn *model.Connection, settings syncSettings) error {
	mapping, err := s.datasource.GetActiveMapping(ctx, conn.ConnectionID)
	if err != nil {
		return &mapper.ValidationError{Field: "mapping", Message: fmt.Sprintf("no active mapping for connection %s", conn.ConnectionID)}
	}
	fieldMap, err := mapper.ParseFieldMap(mapping.FieldMap)
	if err != nil {
		return &mapper.ValidationError{Field: "mapping", Message: err.Error()}
	}

	targetKey, err := s.secrets.Decrypt(conn.TargetAPIKey)
	if err != nil {
		return fmt.Errorf("decrypt target credential: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return &mapper.ValidationError{Field: "payload", Message: "stored payload is not valid JSON"}
	}
	record := mapper.NormalizeRecord(payload)

	mappingStart := time.Now()
	result := s.engine.Apply(ctx, fieldMap, record, mapper.Context{
		ConnectionID: conn.ConnectionID,
		ExternalID:   event.ExternalID,
	})
	event.MappingDurationMs = time.Since(mappingStart).Milliseconds()
	event.Warnings = result.Warnings

	if mapping.SlugTemplate != "" {
		if _, ok := result.FieldData["slug"]; !ok {
			result.FieldData["slug"] = mapper.GenerateSlug(mapping.SlugTemplate, record)
		}
	}

	if err := mapper.ValidateFieldData(result.FieldData, mapping.FieldTypes); err != nil {
		return err
	}
	if err := mapper.ValidateRequiredFields(result.FieldData, mapping.RequiredFields); err != nil {
		return err
	}

	queue := s.registry.GetOrCreate(conn.ConnectionID, settings.rateLimitPerMin)
	opts := executor.Options{
		MaxRetries:  uint64(settings.maxRetryAttempts),
		BaseBackoff: settings.baseBackoff,
		MaxBackoff:  settings.maxBackoff,
		CallTimeout: settings.callTimeout,
	}

	upsertStart := time.Now()
	var upsert *upsertResult
	err = queue.Execute(ctx, opts, func(callCtx context.Context) error {
		var execErr error
		upsert, execErr = s.upsertRecord(callCtx, conn, event, targetKey, result.FieldData)
		return execErr
	})
	event.UpsertDurationMs = time.Since(upsertStart).Milliseconds()
	if err != nil {
		return err
	}

	event.Warnings = append(event.Warnings, upsert.Warnings...)
	event.Status = model.EventStatusSuccess
	event.TargetItemID = upsert.ItemID
	event.PartialSuccess = len(event.Warnings) > 0
	event.LastError = ""
	event.RetryAfter = nil
	now := time.Now()
	event.CompletedAt = &now
	if err := s.datasource.UpdateEvent(ctx, event); err != nil {
		return err
	}
	if err := s.datasource.RecordConnectionSuccess(ctx, conn.ConnectionID, now); err != nil {
		logrus.WithFields(logrus.Fields{
			"connection_id": conn.ConnectionID,
			"error":         err.Error(),
		}).Warn("failed to record connection success")
	}

	logrus.WithFields(logrus.Fields{
		"event_id":        event.EventID,
		"connection_id":   conn.ConnectionID,
		"target_item_id":  upsert.ItemID,
		"warnings":        len(event.Warnings),
		"mapping_ms":      event.MappingDurationMs,
		"upsert_ms":       event.UpsertDurationMs,
		"partial_success": event.PartialSuccess,
	}).Info("event synced")
	return nil
}

// handleError records a terminal or retriable failure on the event. A
// retriable error with budget left schedules the next attempt; anything
// else dead-letters the event and degrades the connection's health.
func (s *SuiteSync) handleError(ctx context.Context, event *model.Event, conn *model.Connection, settings syncSettings, cause error) error {
	event.LastError = cause.Error()
	now := time.Now()

	if executor.IsRetriable(cause) && event.Attempts < settings.maxRetryAttempts {
		// Attempts was already incremented for this run; the first retry
		// waits the base backoff.
		backoff := model.NextRetryBackoff(event.Attempts-1, settings.baseBackoff, settings.maxBackoff)
		retryAfter := now.Add(backoff)
		event.Status = model.EventStatusFailed
		event.RetryAfter = &retryAfter
		if err := s.datasource.UpdateEvent(ctx, event); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"event_id":    event.EventID,
			"attempts":    event.Attempts,
			"retry_after": retryAfter.Format(time.RFC3339),
			"error":       cause.Error(),
		}).Warn("event failed, retry scheduled")
		return cause
	}

	event.Status = model.EventStatusDeadLetter
	event.RetryAfter = nil
	event.CompletedAt = &now
	if err := s.datasource.UpdateEvent(ctx, event); err != nil {
		return err
	}
	if err := s.datasource.RecordConnectionError(ctx, conn.ConnectionID, now, cause.Error()); err != nil {
		logrus.WithFields(logrus.Fields{
			"connection_id": conn.ConnectionID,
			"error":         err.Error(),
		}).Warn("failed to record connection error")
	}
	logrus.WithFields(logrus.Fields{
		"event_id":      event.EventID,
		"connection_id": conn.ConnectionID,
		"attempts":      event.Attempts,
		"error":         cause.Error(),
	}).Error("event dead-lettered")

	s.notifyDeadLetter(ctx, event, conn, cause)
	return cause
}
