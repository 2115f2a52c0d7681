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

	"github.com/sirupsen/logrus"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/internal/secrets"
	"github.com/suitesync/suitesync/mapper"
	"github.com/suitesync/suitesync/model"
)

// ConnectionInput carries the plaintext inputs for creating a connection.
// Credentials only exist in this form in memory; they are encrypted before
// the row is written.
type ConnectionInput struct {
	Name               string
	SourceAccountID    string
	SourceTableID      string
	TargetSiteID       string
	TargetCollectionID string
	SourceAPIKey       string
	TargetAPIKey       string
	RateLimitPerMin    int
	MaxRetryAttempts   int
	RetryBackoffMs     int
	MaxRetryBackoffMs  int
	MetaData           map[string]interface{}
}

// CreateConnection encrypts the supplied credentials, generates a webhook
// secret and persists the connection. The plaintext webhook secret is
// returned exactly once, for the caller to install on the source side.
func (s *SuiteSync) CreateConnection(ctx context.Context, input ConnectionInput) (*model.Connection, string, error) {
	webhookSecret, err := secrets.GenerateSecret(32)
	if err != nil {
		return nil, "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to generate webhook secret", err)
	}

	conn := &model.Connection{
		Name:               input.Name,
		Status:             model.ConnectionStatusActive,
		SourceAccountID:    input.SourceAccountID,
		SourceTableID:      input.SourceTableID,
		TargetSiteID:       input.TargetSiteID,
		TargetCollectionID: input.TargetCollectionID,
		RateLimitPerMin:    input.RateLimitPerMin,
		MaxRetryAttempts:   input.MaxRetryAttempts,
		RetryBackoffMs:     input.RetryBackoffMs,
		MaxRetryBackoffMs:  input.MaxRetryBackoffMs,
		MetaData:           input.MetaData,
	}
	if conn.SourceAPIKey, err = s.secrets.Encrypt(input.SourceAPIKey); err != nil {
		return nil, "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encrypt credentials", err)
	}
	if conn.TargetAPIKey, err = s.secrets.Encrypt(input.TargetAPIKey); err != nil {
		return nil, "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encrypt credentials", err)
	}
	if conn.WebhookSecret, err = s.secrets.Encrypt(webhookSecret); err != nil {
		return nil, "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encrypt credentials", err)
	}

	if err := s.datasource.CreateConnection(ctx, conn); err != nil {
		return nil, "", err
	}
	logrus.WithFields(logrus.Fields{
		"connection_id": conn.ConnectionID,
		"name":          conn.Name,
	}).Info("created connection")
	return conn, webhookSecret, nil
}

// GetConnection returns one connection by id.
func (s *SuiteSync) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	return s.datasource.GetConnection(ctx, id)
}

// ListConnections returns connections matching the filter.
func (s *SuiteSync) ListConnections(ctx context.Context, filter model.ConnectionFilter) ([]*model.Connection, error) {
	return s.datasource.GetAllConnections(ctx, filter)
}

// UpdateConnection persists name, status, rate-limit and retry settings.
func (s *SuiteSync) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	return s.datasource.UpdateConnection(ctx, conn)
}

// ArchiveConnection retires a connection. Its events stop being scheduled
// but the rows stay for audit and replay-after-unarchive.
func (s *SuiteSync) ArchiveConnection(ctx context.Context, id string) error {
	if err := s.datasource.UpdateConnectionStatus(ctx, id, model.ConnectionStatusArchived); err != nil {
		return err
	}
	if err := s.datasource.RecordAudit(ctx, &model.AuditLog{
		Action:   "connection.archived",
		EntityID: id,
		Actor:    "admin",
	}); err != nil {
		logrus.WithField("error", err.Error()).Warn("failed to record archive audit entry")
	}
	return nil
}

// CreateMapping validates and installs a new mapping version for a
// connection, atomically deactivating the previous active version.
func (s *SuiteSync) CreateMapping(ctx context.Context, mapping *model.Mapping) (*model.Mapping, error) {
	if _, err := s.datasource.GetConnection(ctx, mapping.ConnectionID); err != nil {
		return nil, err
	}
	if _, err := mapper.ParseFieldMap(mapping.FieldMap); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if len(mapping.FieldTypes) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Field types are required", nil)
	}

	if err := s.datasource.CreateMapping(ctx, mapping); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"mapping_id":    mapping.MappingID,
		"connection_id": mapping.ConnectionID,
		"version":       mapping.Version,
	}).Info("installed mapping version")
	return mapping, nil
}

// GetActiveMapping returns the active mapping for a connection.
func (s *SuiteSync) GetActiveMapping(ctx context.Context, connectionID string) (*model.Mapping, error) {
	return s.datasource.GetActiveMapping(ctx, connectionID)
}

// ListMappings returns all mapping versions for a connection, newest
// version first.
func (s *SuiteSync) ListMappings(ctx context.Context, connectionID string) ([]*model.Mapping, error) {
	return s.datasource.GetMappingsForConnection(ctx, connectionID)
}
