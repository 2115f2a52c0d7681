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

package model

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/suitesync/suitesync"
	"github.com/suitesync/suitesync/model"
)

// CreateConnection is the request payload for registering a new sync
// connection. Credentials arrive in plaintext over the authenticated admin
// surface and are encrypted before storage.
type CreateConnection struct {
	Name               string                 `json:"name"`
	SourceAccountID    string                 `json:"source_account_id"`
	SourceTableID      string                 `json:"source_table_id"`
	TargetSiteID       string                 `json:"target_site_id"`
	TargetCollectionID string                 `json:"target_collection_id"`
	SourceAPIKey       string                 `json:"source_api_key"`
	TargetAPIKey       string                 `json:"target_api_key"`
	RateLimitPerMin    int                    `json:"rate_limit_per_min"`
	MaxRetryAttempts   int                    `json:"max_retry_attempts"`
	RetryBackoffMs     int                    `json:"retry_backoff_ms"`
	MaxRetryBackoffMs  int                    `json:"max_retry_backoff_ms"`
	MetaData           map[string]interface{} `json:"meta_data"`
}

func (c *CreateConnection) ValidateCreateConnection() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.SourceAccountID, validation.Required),
		validation.Field(&c.SourceTableID, validation.Required),
		validation.Field(&c.TargetSiteID, validation.Required),
		validation.Field(&c.TargetCollectionID, validation.Required),
		validation.Field(&c.SourceAPIKey, validation.Required),
		validation.Field(&c.TargetAPIKey, validation.Required),
		validation.Field(&c.RateLimitPerMin, validation.Min(0)),
		validation.Field(&c.MaxRetryAttempts, validation.Min(0)),
	)
}

func (c *CreateConnection) ToConnectionInput() suitesync.ConnectionInput {
	return suitesync.ConnectionInput{
		Name:               c.Name,
		SourceAccountID:    c.SourceAccountID,
		SourceTableID:      c.SourceTableID,
		TargetSiteID:       c.TargetSiteID,
		TargetCollectionID: c.TargetCollectionID,
		SourceAPIKey:       c.SourceAPIKey,
		TargetAPIKey:       c.TargetAPIKey,
		RateLimitPerMin:    c.RateLimitPerMin,
		MaxRetryAttempts:   c.MaxRetryAttempts,
		RetryBackoffMs:     c.RetryBackoffMs,
		MaxRetryBackoffMs:  c.MaxRetryBackoffMs,
		MetaData:           c.MetaData,
	}
}

// CreateMapping installs a new mapping version on a connection.
type CreateMapping struct {
	FieldMap       json.RawMessage   `json:"field_map"`
	SlugTemplate   string            `json:"slug_template"`
	RequiredFields []string          `json:"required_fields"`
	FieldTypes     map[string]string `json:"field_types"`
}

func (m *CreateMapping) ValidateCreateMapping() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.FieldMap, validation.Required),
		validation.Field(&m.FieldTypes, validation.Required),
	)
}

func (m *CreateMapping) ToMapping(connectionID string) *model.Mapping {
	return &model.Mapping{
		ConnectionID:   connectionID,
		FieldMap:       m.FieldMap,
		SlugTemplate:   m.SlugTemplate,
		RequiredFields: m.RequiredFields,
		FieldTypes:     m.FieldTypes,
	}
}

// ResyncItem requests a one-off pull of a single source record.
type ResyncItem struct {
	ConnectionID string `json:"connection_id"`
	RecordID     string `json:"record_id"`
}

func (r *ResyncItem) ValidateResyncItem() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ConnectionID, validation.Required),
		validation.Field(&r.RecordID, validation.Required),
	)
}

// UpdateConnection carries the mutable connection settings.
type UpdateConnection struct {
	Name              string                 `json:"name"`
	Status            string                 `json:"status"`
	RateLimitPerMin   int                    `json:"rate_limit_per_min"`
	MaxRetryAttempts  int                    `json:"max_retry_attempts"`
	RetryBackoffMs    int                    `json:"retry_backoff_ms"`
	MaxRetryBackoffMs int                    `json:"max_retry_backoff_ms"`
	MetaData          map[string]interface{} `json:"meta_data"`
}

func (u *UpdateConnection) ValidateUpdateConnection() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Name, validation.Required),
		validation.Field(&u.Status, validation.Required, validation.In(
			model.ConnectionStatusActive,
			model.ConnectionStatusPaused,
			model.ConnectionStatusError,
			model.ConnectionStatusArchived,
		)),
		validation.Field(&u.RateLimitPerMin, validation.Min(0)),
	)
}

func (u *UpdateConnection) ApplyTo(conn *model.Connection) {
	conn.Name = u.Name
	conn.Status = u.Status
	conn.RateLimitPerMin = u.RateLimitPerMin
	conn.MaxRetryAttempts = u.MaxRetryAttempts
	conn.RetryBackoffMs = u.RetryBackoffMs
	conn.MaxRetryBackoffMs = u.MaxRetryBackoffMs
	conn.MetaData = u.MetaData
}
