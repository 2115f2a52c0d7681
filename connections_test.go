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
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/suitesync/suitesync/database/mocks"
	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

func TestCreateConnectionEncryptsCredentials(t *testing.T) {
	ds := new(mocks.MockDataSource)
	sync := newTestSync(t, ds)

	input := ConnectionInput{
		Name:               gofakeit.Name(),
		SourceAccountID:    gofakeit.UUID(),
		SourceTableID:      gofakeit.UUID(),
		TargetSiteID:       gofakeit.UUID(),
		TargetCollectionID: gofakeit.UUID(),
		SourceAPIKey:       "ss_" + gofakeit.LetterN(24),
		TargetAPIKey:       "wf_" + gofakeit.LetterN(24),
		RateLimitPerMin:    50,
		MaxRetryAttempts:   5,
		RetryBackoffMs:     1000,
		MaxRetryBackoffMs:  60000,
	}

	ds.On("CreateConnection", mock.Anything, mock.MatchedBy(func(c *model.Connection) bool {
		return c.Name == input.Name &&
			c.Status == model.ConnectionStatusActive &&
			!c.SourceAPIKey.IsZero() && !c.TargetAPIKey.IsZero() && !c.WebhookSecret.IsZero()
	})).Return(nil)

	conn, webhookSecret, err := sync.CreateConnection(context.Background(), input)
	require.NoError(t, err)
	assert.NotEmpty(t, webhookSecret)

	// The plaintext secret round-trips through the stored ciphertext.
	decrypted, err := sync.secrets.Decrypt(conn.WebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, webhookSecret, decrypted)

	decryptedKey, err := sync.secrets.Decrypt(conn.SourceAPIKey)
	require.NoError(t, err)
	assert.Equal(t, input.SourceAPIKey, decryptedKey)

	ds.AssertExpectations(t)
}

func TestArchiveConnectionRecordsAudit(t *testing.T) {
	ds := new(mocks.MockDataSource)
	sync := newTestSync(t, ds)

	ds.On("UpdateConnectionStatus", mock.Anything, "conn_1", model.ConnectionStatusArchived).Return(nil)
	ds.On("RecordAudit", mock.Anything, mock.MatchedBy(func(a *model.AuditLog) bool {
		return a.Action == "connection.archived" && a.EntityID == "conn_1"
	})).Return(nil)

	require.NoError(t, sync.ArchiveConnection(context.Background(), "conn_1"))
	ds.AssertExpectations(t)
}

func TestCreateMappingRejectsInvalidFieldMap(t *testing.T) {
	ds := new(mocks.MockDataSource)
	sync := newTestSync(t, ds)
	conn := testConnection(t, sync)

	ds.On("GetConnection", mock.Anything, conn.ConnectionID).Return(conn, nil)

	mapping := &model.Mapping{
		ConnectionID: conn.ConnectionID,
		FieldMap:     json.RawMessage(`{"name":{"type":"teleport","source":"$.title"}}`),
		FieldTypes:   map[string]string{"name": "PlainText"},
	}

	_, err := sync.CreateMapping(context.Background(), mapping)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	ds.AssertNotCalled(t, "CreateMapping", mock.Anything, mock.Anything)
}

func TestCreateMappingRequiresFieldTypes(t *testing.T) {
	ds := new(mocks.MockDataSource)
	sync := newTestSync(t, ds)
	conn := testConnection(t, sync)

	ds.On("GetConnection", mock.Anything, conn.ConnectionID).Return(conn, nil)

	mapping := &model.Mapping{
		ConnectionID: conn.ConnectionID,
		FieldMap:     json.RawMessage(`{"name":{"type":"direct","source":"$.title"}}`),
	}

	_, err := sync.CreateMapping(context.Background(), mapping)
	require.Error(t, err)
	ds.AssertNotCalled(t, "CreateMapping", mock.Anything, mock.Anything)
}

func TestCreateMappingInstallsVersion(t *testing.T) {
	ds := new(mocks.MockDataSource)
	sync := newTestSync(t, ds)
	conn := testConnection(t, sync)

	ds.On("GetConnection", mock.Anything, conn.ConnectionID).Return(conn, nil)
	ds.On("CreateMapping", mock.Anything, mock.MatchedBy(func(m *model.Mapping) bool {
		return m.ConnectionID == conn.ConnectionID
	})).Return(nil)

	mapping := &model.Mapping{
		ConnectionID: conn.ConnectionID,
		FieldMap:     json.RawMessage(`{"name":{"type":"direct","source":"$.title"}}`),
		FieldTypes:   map[string]string{"name": "PlainText"},
	}

	created, err := sync.CreateMapping(context.Background(), mapping)
	require.NoError(t, err)
	assert.Equal(t, conn.ConnectionID, created.ConnectionID)
	ds.AssertExpectations(t)
}
