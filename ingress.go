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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/internal/signing"
	"github.com/suitesync/suitesync/model"
)

// IngressRequest is one raw webhook delivery handed to the engine by the
// HTTP layer.
type IngressRequest struct {
	ConnectionID   string
	Body           []byte
	Signature      string
	Timestamp      string
	IdempotencyKey string
}

// IngressResult reports what ingestion did with the delivery.
type IngressResult struct {
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// IngestWebhook verifies and persists a webhook delivery as a queued event.
// A replay of an already-seen idempotency key returns the existing event
// with Duplicate set rather than an error.
func (s *SuiteSync) IngestWebhook(ctx context.Context, req IngressRequest) (*IngressResult, error) {
	conn, err := s.datasource.GetConnection(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive() {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, fmt.Sprintf("Connection %s is not active", conn.ConnectionID), nil)
	}

	secret, err := s.secrets.Decrypt(conn.WebhookSecret)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decrypt webhook secret", err)
	}
	if !signing.VerifySignature(req.Body, req.Signature, secret) {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "Invalid webhook signature", nil)
	}
	if req.Timestamp != "" && !signing.VerifyTimestamp(req.Timestamp, time.Now()) {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "Webhook timestamp outside the accepted window", nil)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Invalid JSON payload", err)
	}
	externalID := extractExternalID(payload)
	if externalID == "" {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Payload does not contain a record id", nil)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = deriveIdempotencyKey(req.ConnectionID, externalID, req.Timestamp)
	}

	existing, err := s.datasource.GetEventByIdempotencyKey(ctx, key)
	if err == nil {
		return &IngressResult{EventID: existing.EventID, Status: existing.Status, Duplicate: true}, nil
	}
	if apiErr, ok := err.(apierror.APIError); !ok || apiErr.Code != apierror.ErrNotFound {
		return nil, err
	}

	event := &model.Event{
		EventID:        model.GenerateUUIDWithSuffix("evt"),
		ConnectionID:   conn.ConnectionID,
		IdempotencyKey: key,
		EventType:      extractEventType(payload),
		ExternalID:     externalID,
		Payload:        json.RawMessage(req.Body),
		PayloadHash:    model.HashPayload(req.Body),
		Status:         model.EventStatusQueued,
		QueuedAt:       time.Now(),
	}
	if err := s.datasource.CreateEvent(ctx, event); err != nil {
		// Two deliveries raced on the unique idempotency constraint; the
		// loser reads back the winner's event.
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrConflict {
			if existing, rerr := s.datasource.GetEventByIdempotencyKey(ctx, key); rerr == nil {
				return &IngressResult{EventID: existing.EventID, Status: existing.Status, Duplicate: true}, nil
			}
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"event_id":      event.EventID,
		"connection_id": conn.ConnectionID,
		"external_id":   externalID,
	}).Info("queued webhook event")
	return &IngressResult{EventID: event.EventID, Status: event.Status}, nil
}

// extractExternalID probes the well-known locations a record id may occupy
// in a webhook payload.
func extractExternalID(payload map[string]interface{}) string {
	if id := stringValue(payload["record_id"]); id != "" {
		return id
	}
	if id := stringValue(payload["id"]); id != "" {
		return id
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if id := stringValue(data["id"]); id != "" {
			return id
		}
	}
	return ""
}

func extractEventType(payload map[string]interface{}) string {
	if t := stringValue(payload["event_type"]); t != "" {
		return t
	}
	if t := stringValue(payload["event"]); t != "" {
		return t
	}
	return model.EventTypeRecordUpdated
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

func deriveIdempotencyKey(connectionID, externalID, timestamp string) string {
	if timestamp == "" {
		timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	}
	sum := sha256.Sum256([]byte(connectionID + "-" + externalID + "-" + timestamp))
	return hex.EncodeToString(sum[:])
}
