package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

const eventColumns = `
	event_id, connection_id, idempotency_key, event_type, external_id,
	payload, payload_hash, status, attempts, last_error, warnings,
	partial_success, target_item_id, queued_at, started_at, completed_at,
	retry_after, mapping_duration_ms, upsert_duration_ms`

// CreateEvent inserts a queued event. The unique constraint on the
// idempotency key makes concurrent duplicate inserts race-safe; callers see
// a Conflict and fall back to the existing row.
func (d Datasource) CreateEvent(ctx context.Context, event *model.Event) error {
	warningsJSON, err := json.Marshal(event.Warnings)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal warnings", err)
	}

	if event.EventID == "" {
		event.EventID = GenerateUUIDWithSuffix("evt")
	}
	if event.Status == "" {
		event.Status = model.EventStatusQueued
	}
	if event.QueuedAt.IsZero() {
		event.QueuedAt = time.Now()
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO events (
			event_id, connection_id, idempotency_key, event_type, external_id,
			payload, payload_hash, status, warnings, queued_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, event.EventID, event.ConnectionID, event.IdempotencyKey, event.EventType, event.ExternalID,
		[]byte(event.Payload), event.PayloadHash, event.Status, warningsJSON, event.QueuedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, "Event with this idempotency key already exists", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create event", err)
	}
	return nil
}

func scanEvent(row interface{ Scan(...interface{}) error }) (*model.Event, error) {
	e := model.Event{}
	var payload, warningsJSON []byte
	var eventType, lastError, targetItemID sql.NullString
	var mappingMs, upsertMs sql.NullInt64

	err := row.Scan(
		&e.EventID, &e.ConnectionID, &e.IdempotencyKey, &eventType, &e.ExternalID,
		&payload, &e.PayloadHash, &e.Status, &e.Attempts, &lastError, &warningsJSON,
		&e.PartialSuccess, &targetItemID, &e.QueuedAt, &e.StartedAt, &e.CompletedAt,
		&e.RetryAfter, &mappingMs, &upsertMs,
	)
	if err != nil {
		return nil, err
	}

	e.Payload = json.RawMessage(payload)
	e.EventType = eventType.String
	e.LastError = lastError.String
	e.TargetItemID = targetItemID.String
	e.MappingDurationMs = mappingMs.Int64
	e.UpsertDurationMs = upsertMs.Int64
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &e.Warnings); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (d Datasource) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE event_id = $1
	`, id)

	e, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Event not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve event", err)
	}
	return e, nil
}

func (d Datasource) GetEventByIdempotencyKey(ctx context.Context, key string) (*model.Event, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE idempotency_key = $1
	`, key)

	e, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Event not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve event", err)
	}
	return e, nil
}

func (d Datasource) GetAllEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE ($1 = '' OR connection_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY queued_at DESC
		LIMIT $3 OFFSET $4
	`, filter.ConnectionID, filter.Status, limit, filter.Offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve events", err)
	}
	defer rows.Close()

	events := []*model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan event data", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetDueEvents selects the next batch for the worker: queued events, plus
// failed events whose retry window has elapsed, restricted to active
// connections, oldest first so due retries interleave with fresh events by
// age.
func (d Datasource) GetDueEvents(ctx context.Context, batchSize int, now time.Time) ([]*model.Event, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT e.event_id, e.connection_id, e.idempotency_key, e.event_type, e.external_id,
			e.payload, e.payload_hash, e.status, e.attempts, e.last_error, e.warnings,
			e.partial_success, e.target_item_id, e.queued_at, e.started_at, e.completed_at,
			e.retry_after, e.mapping_duration_ms, e.upsert_duration_ms
		FROM events e
		JOIN connections c ON c.connection_id = e.connection_id
		WHERE c.status = 'active'
		  AND (e.status = 'queued' OR (e.status = 'failed' AND e.retry_after <= $2))
		ORDER BY e.queued_at ASC
		LIMIT $1
	`, batchSize, now)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due events", err)
	}
	defer rows.Close()

	events := []*model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan event data", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (d Datasource) UpdateEvent(ctx context.Context, event *model.Event) error {
	warningsJSON, err := json.Marshal(event.Warnings)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal warnings", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE events
		SET status = $2, attempts = $3, last_error = $4, warnings = $5,
			partial_success = $6, target_item_id = $7, started_at = $8,
			completed_at = $9, retry_after = $10,
			mapping_duration_ms = $11, upsert_duration_ms = $12
		WHERE event_id = $1
	`, event.EventID, event.Status, event.Attempts, event.LastError, warningsJSON,
		event.PartialSuccess, event.TargetItemID, event.StartedAt,
		event.CompletedAt, event.RetryAfter,
		event.MappingDurationMs, event.UpsertDurationMs)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update event", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Event not found", nil)
	}
	return nil
}

// MarkEventProcessing transitions an event to processing and increments its
// attempts counter in one statement, returning the new count.
func (d Datasource) MarkEventProcessing(ctx context.Context, id string, startedAt time.Time) (int, error) {
	var attempts int
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE events
		SET status = 'processing', attempts = attempts + 1, started_at = $2
		WHERE event_id = $1
		RETURNING attempts
	`, id, startedAt).Scan(&attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apierror.NewAPIError(apierror.ErrNotFound, "Event not found", err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark event processing", err)
	}
	return attempts, nil
}

// ReplayEvent resets a failed or dead-lettered event back to queued,
// clearing attempts, error and retry state.
func (d Datasource) ReplayEvent(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE events
		SET status = 'queued', attempts = 0, last_error = NULL, retry_after = NULL,
			started_at = NULL, completed_at = NULL
		WHERE event_id = $1 AND status IN ('failed', 'dead_letter')
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to replay event", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Event is not in a replayable state", nil)
	}
	return nil
}

func (d Datasource) QueueStats(ctx context.Context, now time.Time) (int64, time.Duration, error) {
	var depth int64
	var oldest sql.NullTime
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(queued_at)
		FROM events
		WHERE status = 'queued' OR (status = 'failed' AND retry_after <= $1)
	`, now).Scan(&depth, &oldest)
	if err != nil {
		return 0, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute queue stats", err)
	}

	var oldestAge time.Duration
	if oldest.Valid {
		oldestAge = now.Sub(oldest.Time)
	}
	return depth, oldestAge, nil
}

func (d Datasource) CountEventsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM events GROUP BY status
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count events", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan event counts", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
