package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

func (d Datasource) CreateIdMap(ctx context.Context, m *model.IdMap) error {
	if m.IdMapID == "" {
		m.IdMapID = GenerateUUIDWithSuffix("idm")
	}
	if m.ExternalSource == "" {
		m.ExternalSource = model.ExternalSourceSmartSuite
	}
	m.CreatedAt = time.Now()
	m.LastSyncedAt = m.CreatedAt

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO id_maps (
			id_map_id, connection_id, external_source, external_id,
			target_item_id, slug, created_at, last_synced_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.IdMapID, m.ConnectionID, m.ExternalSource, m.ExternalID,
		m.TargetItemID, m.Slug, m.CreatedAt, m.LastSyncedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, "Id map for this record already exists", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create id map", err)
	}
	return nil
}

const idMapColumns = `
	id_map_id, connection_id, external_source, external_id,
	target_item_id, slug, created_at, last_synced_at`

func scanIdMap(row interface{ Scan(...interface{}) error }) (*model.IdMap, error) {
	m := model.IdMap{}
	var slug sql.NullString
	err := row.Scan(
		&m.IdMapID, &m.ConnectionID, &m.ExternalSource, &m.ExternalID,
		&m.TargetItemID, &slug, &m.CreatedAt, &m.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Slug = slug.String
	return &m, nil
}

func (d Datasource) GetIdMap(ctx context.Context, connectionID, externalSource, externalID string) (*model.IdMap, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+idMapColumns+`
		FROM id_maps
		WHERE connection_id = $1 AND external_source = $2 AND external_id = $3
	`, connectionID, externalSource, externalID)

	m, err := scanIdMap(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Id map not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve id map", err)
	}
	return m, nil
}

// GetIdMaps resolves a batch of external ids at once, for reference-field
// mapping. Missing ids are simply absent from the result.
func (d Datasource) GetIdMaps(ctx context.Context, connectionID, externalSource string, externalIDs []string) ([]*model.IdMap, error) {
	if len(externalIDs) == 0 {
		return []*model.IdMap{}, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+idMapColumns+`
		FROM id_maps
		WHERE connection_id = $1 AND external_source = $2 AND external_id = ANY($3)
	`, connectionID, externalSource, pq.Array(externalIDs))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve id maps", err)
	}
	defer rows.Close()

	maps := []*model.IdMap{}
	for rows.Next() {
		m, err := scanIdMap(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan id map data", err)
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (d Datasource) TouchIdMap(ctx context.Context, idMapID string, syncedAt time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE id_maps SET last_synced_at = $2 WHERE id_map_id = $1
	`, idMapID, syncedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update id map", err)
	}
	return nil
}
