package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/suitesync/suitesync/config"
	"github.com/suitesync/suitesync/internal/cache"
)

var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the datasource and
// initializes it on first use.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		cacheInstance, errCache := cache.NewCache()
		if errCache != nil {
			// Cache is an optimization over the connections table; the
			// datasource still works without it.
			log.Printf("cache unavailable, continuing without it: %v", errCache)
			cacheInstance = nil
		}
		instance = &Datasource{Conn: con, Cache: cacheInstance}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error ❌: %v", err)
		return nil, errors.Wrap(err, "pinging database")
	}
	err = createConnectionTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating connections table")
	}
	err = createMappingTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating mappings table")
	}
	err = createEventTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating events table")
	}
	err = createIdMapTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating id_maps table")
	}
	err = createDistributedLockTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating distributed_locks table")
	}
	err = createAuditLogTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating audit_logs table")
	}
	return db, nil
}

// Ping reports whether the database connection is alive.
func (d Datasource) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

func createConnectionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS connections (
			id SERIAL PRIMARY KEY,
			connection_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			source_account_id TEXT,
			source_table_id TEXT,
			target_site_id TEXT,
			target_collection_id TEXT,
			source_api_key JSONB,
			target_api_key JSONB,
			webhook_secret JSONB,
			rate_limit_per_min INTEGER NOT NULL DEFAULT 50,
			max_retry_attempts INTEGER NOT NULL DEFAULT 5,
			retry_backoff_ms INTEGER NOT NULL DEFAULT 1000,
			max_retry_backoff_ms INTEGER NOT NULL DEFAULT 60000,
			consecutive_errors INTEGER NOT NULL DEFAULT 0,
			last_success_at TIMESTAMP,
			last_error_at TIMESTAMP,
			last_error_message TEXT,
			meta_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createMappingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mappings (
			id SERIAL PRIMARY KEY,
			mapping_id TEXT NOT NULL UNIQUE,
			connection_id TEXT NOT NULL REFERENCES connections(connection_id),
			version INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			field_map JSONB NOT NULL,
			slug_template TEXT,
			required_fields JSONB,
			field_types JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_one_active
			ON mappings (connection_id) WHERE is_active
	`)
	return err
}

func createEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id SERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			connection_id TEXT NOT NULL REFERENCES connections(connection_id),
			idempotency_key TEXT NOT NULL UNIQUE,
			event_type TEXT,
			external_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			payload_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			warnings JSONB,
			partial_success BOOLEAN NOT NULL DEFAULT FALSE,
			target_item_id TEXT,
			queued_at TIMESTAMP NOT NULL DEFAULT NOW(),
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			retry_after TIMESTAMP,
			mapping_duration_ms BIGINT,
			upsert_duration_ms BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_events_due
			ON events (status, retry_after, queued_at)
	`)
	return err
}

func createIdMapTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS id_maps (
			id SERIAL PRIMARY KEY,
			id_map_id TEXT NOT NULL UNIQUE,
			connection_id TEXT NOT NULL REFERENCES connections(connection_id),
			external_source TEXT NOT NULL DEFAULT 'smartsuite',
			external_id TEXT NOT NULL,
			target_item_id TEXT NOT NULL,
			slug TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_synced_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (connection_id, external_source, external_id)
		)
	`)
	return err
}

func createDistributedLockTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS distributed_locks (
			lock_id TEXT PRIMARY KEY,
			holder TEXT NOT NULL,
			acquired_at TIMESTAMP NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func createAuditLogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id SERIAL PRIMARY KEY,
			audit_id TEXT NOT NULL UNIQUE,
			action TEXT NOT NULL,
			entity_id TEXT,
			actor TEXT,
			details JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
