package model

import (
	"encoding/json"
	"math/rand"
	"time"
)

const (
	EventStatusQueued     = "queued"
	EventStatusProcessing = "processing"
	EventStatusSuccess    = "success"
	EventStatusFailed     = "failed"
	EventStatusDeadLetter = "dead_letter"
)

const (
	EventTypeRecordCreated = "record.created"
	EventTypeRecordUpdated = "record.updated"
	EventTypeRecordDeleted = "record.deleted"
)

// Event is one webhook delivery moving through the sync state machine.
// The raw payload is kept verbatim so the event can be replayed.
type Event struct {
	EventID        string `json:"event_id"`
	ConnectionID   string `json:"connection_id"`
	IdempotencyKey string `json:"idempotency_key"`
	EventType      string `json:"event_type"`
	ExternalID     string `json:"external_id"`

	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`

	Status         string   `json:"status"`
	Attempts       int      `json:"attempts"`
	LastError      string   `json:"last_error,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	PartialSuccess bool     `json:"partial_success"`

	TargetItemID string `json:"target_item_id,omitempty"`

	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`

	// Durations in milliseconds, recorded per processing attempt.
	MappingDurationMs int64 `json:"mapping_duration_ms,omitempty"`
	UpsertDurationMs  int64 `json:"upsert_duration_ms,omitempty"`
}

// IsTerminal reports whether the event will never be processed again
// short of a manual replay.
func (e *Event) IsTerminal() bool {
	switch e.Status {
	case EventStatusSuccess, EventStatusDeadLetter:
		return true
	}
	return false
}

// NextRetryBackoff computes the delay before the given attempt number is
// retried: base doubled per attempt, capped, plus up to 30% jitter so herds
// of failed events do not retry in lockstep.
func NextRetryBackoff(attempts int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	backoff := base
	for i := 0; i < attempts; i++ {
		backoff *= 2
		if backoff >= max {
			backoff = max
			break
		}
	}
	if max > 0 && backoff > max {
		backoff = max
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/10*3 + 1))
	return backoff + jitter
}

type EventFilter struct {
	ConnectionID string `json:"connection_id"`
	Status       string `json:"status"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
}
