package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

// RecordAudit appends an entry to the audit sink. Audit rows are write-only
// from the application's point of view.
func (d Datasource) RecordAudit(ctx context.Context, entry *model.AuditLog) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal audit details", err)
	}

	if entry.AuditID == "" {
		entry.AuditID = GenerateUUIDWithSuffix("aud")
	}
	entry.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO audit_logs (audit_id, action, entity_id, actor, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.AuditID, entry.Action, entry.EntityID, entry.Actor, detailsJSON, entry.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record audit entry", err)
	}
	return nil
}

// LastAuditByAction returns the most recent audit entry for an action, used
// by the health check to report the last worker run.
func (d Datasource) LastAuditByAction(ctx context.Context, action string) (*model.AuditLog, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT audit_id, action, entity_id, actor, details, created_at
		FROM audit_logs
		WHERE action = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, action)

	entry := model.AuditLog{}
	var entityID, actor sql.NullString
	var detailsJSON []byte
	err := row.Scan(&entry.AuditID, &entry.Action, &entityID, &actor, &detailsJSON, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Audit entry not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve audit entry", err)
	}
	entry.EntityID = entityID.String
	entry.Actor = actor.String
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal audit details", err)
		}
	}
	return &entry, nil
}
