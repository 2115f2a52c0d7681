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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suitesync/suitesync"
)

const (
	SignatureHeader      = "X-Signature"
	TimestampHeader      = "X-Timestamp"
	IdempotencyKeyHeader = "X-Idempotency-Key"
)

// ReceiveWebhook accepts a signed change notification for a connection.
// New deliveries queue an event and return 202; idempotent replays return
// 200 with the original event id.
func (a Api) ReceiveWebhook(c *gin.Context) {
	connectionID, passed := c.Params.Get("connection_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connection_id is required. pass id in the route /hooks/:connection_id"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	result, err := a.sync.IngestWebhook(c.Request.Context(), suitesync.IngressRequest{
		ConnectionID:   connectionID,
		Body:           body,
		Signature:      c.GetHeader(SignatureHeader),
		Timestamp:      c.GetHeader(TimestampHeader),
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"message": "Duplicate event", "event_id": result.EventID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event_id": result.EventID, "status": result.Status})
}

// TriggerIngest runs one scheduler batch. A concurrent run elsewhere in
// the fleet returns 423 Locked.
func (a Api) TriggerIngest(c *gin.Context) {
	result, err := a.sync.RunIngestBatch(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health reports queue depth and status breakdowns.
func (a Api) Health(c *gin.Context) {
	status, err := a.sync.Health(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
