package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/suitesync/suitesync/internal/apierror"
	"github.com/suitesync/suitesync/model"
)

func connectionCacheKey(id string) string {
	return fmt.Sprintf("connection:%s", id)
}

const connectionColumns = `
	connection_id, name, status,
	source_account_id, source_table_id, target_site_id, target_collection_id,
	source_api_key, target_api_key, webhook_secret,
	rate_limit_per_min, max_retry_attempts, retry_backoff_ms, max_retry_backoff_ms,
	consecutive_errors, last_success_at, last_error_at, last_error_message,
	meta_data, created_at, updated_at`

func (d Datasource) CreateConnection(ctx context.Context, conn *model.Connection) error {
	metaDataJSON, err := json.Marshal(conn.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	sourceKey, err := json.Marshal(conn.SourceAPIKey)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal credentials", err)
	}
	targetKey, err := json.Marshal(conn.TargetAPIKey)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal credentials", err)
	}
	webhookSecret, err := json.Marshal(conn.WebhookSecret)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal credentials", err)
	}

	if conn.ConnectionID == "" {
		conn.ConnectionID = GenerateUUIDWithSuffix("conn")
	}
	if conn.Status == "" {
		conn.Status = model.ConnectionStatusActive
	}
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO connections (
			connection_id, name, status,
			source_account_id, source_table_id, target_site_id, target_collection_id,
			source_api_key, target_api_key, webhook_secret,
			rate_limit_per_min, max_retry_attempts, retry_backoff_ms, max_retry_backoff_ms,
			meta_data, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, conn.ConnectionID, conn.Name, conn.Status,
		conn.SourceAccountID, conn.SourceTableID, conn.TargetSiteID, conn.TargetCollectionID,
		sourceKey, targetKey, webhookSecret,
		conn.RateLimitPerMin, conn.MaxRetryAttempts, conn.RetryBackoffMs, conn.MaxRetryBackoffMs,
		metaDataJSON, conn.CreatedAt, conn.UpdatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, "Connection with this ID already exists", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create connection", err)
	}

	return nil
}

func scanConnection(row interface{ Scan(...interface{}) error }) (*model.Connection, error) {
	conn := model.Connection{}
	var sourceKey, targetKey, webhookSecret, metaDataJSON []byte
	var lastErrorMessage sql.NullString

	err := row.Scan(
		&conn.ConnectionID, &conn.Name, &conn.Status,
		&conn.SourceAccountID, &conn.SourceTableID, &conn.TargetSiteID, &conn.TargetCollectionID,
		&sourceKey, &targetKey, &webhookSecret,
		&conn.RateLimitPerMin, &conn.MaxRetryAttempts, &conn.RetryBackoffMs, &conn.MaxRetryBackoffMs,
		&conn.ConsecutiveErrors, &conn.LastSuccessAt, &conn.LastErrorAt, &lastErrorMessage,
		&metaDataJSON, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.LastErrorMessage = lastErrorMessage.String
	if len(sourceKey) > 0 {
		if err := json.Unmarshal(sourceKey, &conn.SourceAPIKey); err != nil {
			return nil, err
		}
	}
	if len(targetKey) > 0 {
		if err := json.Unmarshal(targetKey, &conn.TargetAPIKey); err != nil {
			return nil, err
		}
	}
	if len(webhookSecret) > 0 {
		if err := json.Unmarshal(webhookSecret, &conn.WebhookSecret); err != nil {
			return nil, err
		}
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &conn.MetaData); err != nil {
			return nil, err
		}
	}
	return &conn, nil
}

func (d Datasource) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	var cached model.Connection
	if d.Cache != nil {
		if err := d.Cache.Get(ctx, connectionCacheKey(id), &cached); err == nil && cached.ConnectionID != "" {
			return &cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE connection_id = $1
	`, id)

	conn, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Connection not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve connection", err)
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, connectionCacheKey(id), conn, 5*time.Minute); err != nil {
			return conn, nil
		}
	}
	return conn, nil
}

func (d Datasource) GetAllConnections(ctx context.Context, filter model.ConnectionFilter) ([]*model.Connection, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, filter.Status, limit, filter.Offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve connections", err)
	}
	defer rows.Close()

	connections := []*model.Connection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan connection data", err)
		}
		connections = append(connections, conn)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over connections", err)
	}
	return connections, nil
}

func (d Datasource) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	metaDataJSON, err := json.Marshal(conn.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE connections
		SET name = $2, status = $3,
			rate_limit_per_min = $4, max_retry_attempts = $5,
			retry_backoff_ms = $6, max_retry_backoff_ms = $7,
			meta_data = $8, updated_at = NOW()
		WHERE connection_id = $1
	`, conn.ConnectionID, conn.Name, conn.Status,
		conn.RateLimitPerMin, conn.MaxRetryAttempts,
		conn.RetryBackoffMs, conn.MaxRetryBackoffMs, metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update connection", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Connection not found", nil)
	}
	if d.Cache != nil {
		_ = d.Cache.Delete(ctx, connectionCacheKey(conn.ConnectionID))
	}
	return nil
}

func (d Datasource) UpdateConnectionStatus(ctx context.Context, id, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE connections SET status = $2, updated_at = NOW() WHERE connection_id = $1
	`, id, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update connection status", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Connection not found", nil)
	}
	if d.Cache != nil {
		_ = d.Cache.Delete(ctx, connectionCacheKey(id))
	}
	return nil
}

func (d Datasource) RecordConnectionSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE connections
		SET consecutive_errors = 0, last_success_at = $2, updated_at = NOW()
		WHERE connection_id = $1
	`, id, at)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record connection success", err)
	}
	return nil
}

func (d Datasource) RecordConnectionError(ctx context.Context, id string, at time.Time, message string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE connections
		SET consecutive_errors = consecutive_errors + 1,
			last_error_at = $2, last_error_message = $3, updated_at = NOW()
		WHERE connection_id = $1
	`, id, at, message)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record connection error", err)
	}
	return nil
}

func (d Datasource) CountConnectionsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM connections GROUP BY status
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count connections", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan connection counts", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
