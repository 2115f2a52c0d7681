package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

// CreateMapping inserts a new mapping version and deactivates any prior
// active mapping for the connection in the same transaction, keeping the
// one-active-mapping invariant under concurrent writers.
func (d Datasource) CreateMapping(ctx context.Context, m *model.Mapping) error {
	requiredJSON, err := json.Marshal(m.RequiredFields)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal required fields", err)
	}
	typesJSON, err := json.Marshal(m.FieldTypes)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal field types", err)
	}

	if m.MappingID == "" {
		m.MappingID = GenerateUUIDWithSuffix("map")
	}
	m.IsActive = true
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var version sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		UPDATE mappings SET is_active = FALSE, updated_at = NOW()
		WHERE connection_id = $1 AND is_active
		RETURNING version
	`, m.ConnectionID).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to deactivate prior mapping", err)
	}
	m.Version = int(version.Int64) + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mappings (
			mapping_id, connection_id, version, is_active,
			field_map, slug_template, required_fields, field_types,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, m.MappingID, m.ConnectionID, m.Version, m.IsActive,
		[]byte(m.FieldMap), m.SlugTemplate, requiredJSON, typesJSON,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create mapping", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit mapping", err)
	}
	return nil
}

const mappingColumns = `
	mapping_id, connection_id, version, is_active,
	field_map, slug_template, required_fields, field_types,
	created_at, updated_at`

func scanMapping(row interface{ Scan(...interface{}) error }) (*model.Mapping, error) {
	m := model.Mapping{}
	var fieldMap, requiredJSON, typesJSON []byte
	var slugTemplate sql.NullString

	err := row.Scan(
		&m.MappingID, &m.ConnectionID, &m.Version, &m.IsActive,
		&fieldMap, &slugTemplate, &requiredJSON, &typesJSON,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.FieldMap = json.RawMessage(fieldMap)
	m.SlugTemplate = slugTemplate.String
	if len(requiredJSON) > 0 {
		if err := json.Unmarshal(requiredJSON, &m.RequiredFields); err != nil {
			return nil, err
		}
	}
	if len(typesJSON) > 0 {
		if err := json.Unmarshal(typesJSON, &m.FieldTypes); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (d Datasource) GetActiveMapping(ctx context.Context, connectionID string) (*model.Mapping, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE connection_id = $1 AND is_active
	`, connectionID)

	m, err := scanMapping(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "No active mapping for connection", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve mapping", err)
	}
	return m, nil
}

func (d Datasource) GetMapping(ctx context.Context, id string) (*model.Mapping, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE mapping_id = $1
	`, id)

	m, err := scanMapping(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Mapping not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve mapping", err)
	}
	return m, nil
}

func (d Datasource) GetMappingsForConnection(ctx context.Context, connectionID string) ([]*model.Mapping, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE connection_id = $1
		ORDER BY version DESC
	`, connectionID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve mappings", err)
	}
	defer rows.Close()

	mappings := []*model.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan mapping data", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
