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

// Package suitesync relays signed change webhooks from SmartSuite records
// into Webflow CMS items: ingress with signature and idempotency checks, a
// durable event state machine, a lock-guarded batch worker, and a
// per-connection rate-limited upsert path.
package suitesync

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/database"
	"github.com/suitesync/suitesync/internal/executor"
	redis_db "github.com/suitesync/suitesync/internal/redis-db"
	"github.com/suitesync/suitesync/internal/secrets"
	"github.com/suitesync/suitesync/mapper"
	"github.com/suitesync/suitesync/model"
	"github.com/suitesync/suitesync/smartsuite"
	"github.com/suitesync/suitesync/webflow"
)

// SuiteSync is the engine facade the API and workers drive.
type SuiteSync struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	secrets    secrets.Store
	registry   *executor.Registry
	locks      *LockManager
	engine     *mapper.Engine
	webflow    *webflow.Client
	smartsuite *smartsuite.Client
}

// NewSuiteSync wires the engine together from configuration: datasource,
// Redis, secret store, per-connection queue registry, lock manager and the
// mapping engine with its jq evaluator and id-map reference resolver.
func NewSuiteSync(db database.IDataSource) (*SuiteSync, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	secretStore, err := secrets.NewStore(configuration.Encryption.Key)
	if err != nil {
		return nil, err
	}

	s := &SuiteSync{
		datasource: db,
		redis:      redisClient.Client(),
		secrets:    secretStore,
		registry:   executor.NewRegistry(),
		locks:      NewLockManager(db),
		webflow:    webflow.NewClient(),
		smartsuite: smartsuite.NewClient(),
	}
	s.engine = mapper.NewEngine(mapper.NewJQEvaluator(), &idMapResolver{datasource: db})
	return s, nil
}

// NewSuiteSyncWithDeps assembles an engine from explicit dependencies,
// bypassing config and Redis bootstrap. Tests and embedders use this;
// NewSuiteSync is the production path.
func NewSuiteSyncWithDeps(db database.IDataSource, secretStore secrets.Store, wf *webflow.Client, ss *smartsuite.Client) *SuiteSync {
	s := &SuiteSync{
		datasource: db,
		secrets:    secretStore,
		registry:   executor.NewRegistry(),
		locks:      NewLockManager(db),
		webflow:    wf,
		smartsuite: ss,
	}
	s.engine = mapper.NewEngine(mapper.NewJQEvaluator(), &idMapResolver{datasource: db})
	return s
}

// idMapResolver adapts the datasource's id-map lookups to the mapping
// engine's reference-resolution interface.
type idMapResolver struct {
	datasource database.IDataSource
}

func (r *idMapResolver) Resolve(ctx context.Context, connectionID string, externalIDs []string) (map[string]string, error) {
	maps, err := r.datasource.GetIdMaps(ctx, connectionID, model.ExternalSourceSmartSuite, externalIDs)
	if err != nil {
		return nil, err
	}
	resolved := make(map[string]string, len(maps))
	for _, m := range maps {
		resolved[m.ExternalID] = m.TargetItemID
	}
	return resolved, nil
}
