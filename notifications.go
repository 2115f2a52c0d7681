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
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/internal/notification"
	"github.com/suitesync/suitesync/model"
)

// DeadLetterNotification is the payload enqueued when an event exhausts its
// retry budget, consumed by the notification worker.
type DeadLetterNotification struct {
	EventID        string    `json:"event_id"`
	ConnectionID   string    `json:"connection_id"`
	ConnectionName string    `json:"connection_name"`
	ExternalID     string    `json:"external_id"`
	Attempts       int       `json:"attempts"`
	Error          string    `json:"error"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// notifyDeadLetter enqueues a dead-letter notification for async delivery.
// Notification failures never affect event processing.
func (s *SuiteSync) notifyDeadLetter(_ context.Context, event *model.Event, conn *model.Connection, cause error) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	payload, err := json.Marshal(DeadLetterNotification{
		EventID:        event.EventID,
		ConnectionID:   conn.ConnectionID,
		ConnectionName: conn.Name,
		ExternalID:     event.ExternalID,
		Attempts:       event.Attempts,
		Error:          cause.Error(),
		OccurredAt:     time.Now(),
	})
	if err != nil {
		logrus.Error(err)
		return
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: conf.Redis.Dns})
	defer client.Close()

	task := asynq.NewTask(conf.Queue.NotificationQueue, payload, asynq.Queue(conf.Queue.NotificationQueue))
	info, err := client.Enqueue(task, asynq.MaxRetry(3))
	if err != nil {
		notification.NotifyError(err)
		logrus.WithFields(logrus.Fields{
			"event_id": event.EventID,
			"error":    err.Error(),
		}).Error("failed to enqueue dead-letter notification")
		return
	}
	logrus.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"task_id":  info.ID,
		"queue":    info.Queue,
	}).Info("enqueued dead-letter notification")
}

// ProcessNotification is the asynq handler draining the notification queue:
// it fans the dead-letter payload out to the configured Slack and webhook
// sinks.
func ProcessNotification(_ context.Context, task *asynq.Task) error {
	var payload DeadLetterNotification
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"event_id":      payload.EventID,
		"connection_id": payload.ConnectionID,
	}).Info("delivering dead-letter notification")

	if err := notification.WebhookNotification(map[string]interface{}{
		"type":            "event.dead_letter",
		"event_id":        payload.EventID,
		"connection_id":   payload.ConnectionID,
		"connection_name": payload.ConnectionName,
		"external_id":     payload.ExternalID,
		"attempts":        payload.Attempts,
		"error":           payload.Error,
		"occurred_at":     payload.OccurredAt.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	return nil
}
