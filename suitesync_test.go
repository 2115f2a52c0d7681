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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/database/mocks"
	"github.com/suitesync/suitesync/internal/secrets"
	"github.com/suitesync/suitesync/model"
	"github.com/suitesync/suitesync/smartsuite"
	"github.com/suitesync/suitesync/webflow"
)

const testWebhookSecret = "whsec_test"

func newTestSync(t *testing.T, ds *mocks.MockDataSource) *SuiteSync {
	t.Helper()
	config.MockConfig(&config.Configuration{})

	store, err := secrets.NewStore(strings.Repeat("0", 64))
	require.NoError(t, err)

	return NewSuiteSyncWithDeps(ds, store, webflow.NewClient(), smartsuite.NewClient())
}

func mustEncrypt(t *testing.T, s *SuiteSync, plaintext string) secrets.Encrypted {
	t.Helper()
	blob, err := s.secrets.Encrypt(plaintext)
	require.NoError(t, err)
	return blob
}

func testConnection(t *testing.T, s *SuiteSync) *model.Connection {
	t.Helper()
	return &model.Connection{
		ConnectionID:       "conn_1",
		Name:               "products",
		Status:             model.ConnectionStatusActive,
		SourceAccountID:    "base_1",
		SourceTableID:      "tbl_1",
		TargetSiteID:       "site_1",
		TargetCollectionID: "col_1",
		SourceAPIKey:       mustEncrypt(t, s, "ss_key"),
		TargetAPIKey:       mustEncrypt(t, s, "wf_key"),
		WebhookSecret:      mustEncrypt(t, s, testWebhookSecret),
		RateLimitPerMin:    50,
		MaxRetryAttempts:   5,
		RetryBackoffMs:     1000,
		MaxRetryBackoffMs:  60000,
	}
}
