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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
	"github.com/suitesync/suitesync/webflow"
)

// maxSlugAttempts bounds suffix probing when the target rejects a slug as
// taken. Past this the collision is treated as fatal rather than retried.
const maxSlugAttempts = 10

type upsertResult struct {
	ItemID   string
	Created  bool
	Warnings []string
}

// upsertRecord routes a mapped record to the target collection: update in
// place when an id-map row already binds the external id to a target item,
// otherwise create and record the binding. Create retries slug collisions
// with numeric suffixes.
func (s *SuiteSync) upsertRecord(ctx context.Context, conn *model.Connection, event *model.Event, targetKey string, fieldData map[string]interface{}) (*upsertResult, error) {
	existing, err := s.datasource.GetIdMap(ctx, conn.ConnectionID, model.ExternalSourceSmartSuite, event.ExternalID)
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); !ok || apiErr.Code != apierror.ErrNotFound {
			return nil, err
		}
		existing = nil
	}

	if existing != nil {
		item, err := s.webflow.UpdateItem(ctx, targetKey, conn.TargetCollectionID, existing.TargetItemID, fieldData)
		if err != nil {
			return nil, err
		}
		if err := s.datasource.TouchIdMap(ctx, existing.IdMapID, time.Now()); err != nil {
			logrus.WithFields(logrus.Fields{
				"id_map_id": existing.IdMapID,
				"error":     err.Error(),
			}).Warn("failed to refresh id map sync time")
		}
		return &upsertResult{ItemID: item.ID}, nil
	}

	item, warnings, err := s.createWithSlugRetry(ctx, conn, targetKey, fieldData)
	if err != nil {
		return nil, err
	}

	idMap := &model.IdMap{
		ConnectionID:   conn.ConnectionID,
		ExternalSource: model.ExternalSourceSmartSuite,
		ExternalID:     event.ExternalID,
		TargetItemID:   item.ID,
		Slug:           stringValue(fieldData["slug"]),
	}
	if err := s.datasource.CreateIdMap(ctx, idMap); err != nil {
		// A concurrent replay already recorded the binding; the created
		// item stands either way.
		if apiErr, ok := err.(apierror.APIError); !ok || apiErr.Code != apierror.ErrConflict {
			return nil, err
		}
	}
	return &upsertResult{ItemID: item.ID, Created: true, Warnings: warnings}, nil
}

func (s *SuiteSync) createWithSlugRetry(ctx context.Context, conn *model.Connection, targetKey string, fieldData map[string]interface{}) (*webflow.Item, []string, error) {
	baseSlug := stringValue(fieldData["slug"])
	var warnings []string

	for attempt := 0; ; attempt++ {
		item, err := s.webflow.CreateItem(ctx, targetKey, conn.TargetCollectionID, fieldData)
		if err == nil {
			return item, warnings, nil
		}
		if !webflow.IsSlugCollision(err) {
			return nil, nil, err
		}
		if attempt+1 >= maxSlugAttempts {
			return nil, nil, fmt.Errorf("slug %q still colliding after %d attempts", stringValue(fieldData["slug"]), maxSlugAttempts)
		}

		next := fmt.Sprintf("%s-%d", baseSlug, attempt+1)
		warnings = append(warnings, fmt.Sprintf("Slug '%s' taken, retrying as '%s'", stringValue(fieldData["slug"]), next))
		logrus.WithFields(logrus.Fields{
			"connection_id": conn.ConnectionID,
			"slug":          next,
			"attempt":       attempt + 1,
		}).Warn("slug collision, retrying with suffix")
		fieldData["slug"] = next
	}
}
