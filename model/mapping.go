package model

import (
	"encoding/json"
	"time"
)

// Mapping is the declarative field-mapping document for a connection. The
// field map itself is kept as raw JSON; the mapper package parses and
// validates it, preserving declaration order.
type Mapping struct {
	MappingID    string `json:"mapping_id"`
	ConnectionID string `json:"connection_id"`
	Version      int    `json:"version"`
	IsActive     bool   `json:"is_active"`

	FieldMap       json.RawMessage   `json:"field_map"`
	SlugTemplate   string            `json:"slug_template,omitempty"`
	RequiredFields []string          `json:"required_fields,omitempty"`
	FieldTypes     map[string]string `json:"field_types,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExternalSourceSmartSuite is the only external source currently wired in;
// the column exists so a second source system does not need a migration.
const ExternalSourceSmartSuite = "smartsuite"

// IdMap records which Webflow item a SmartSuite record landed in, per
// connection. Unique per (connection, external source, external record).
type IdMap struct {
	IdMapID        string    `json:"id_map_id"`
	ConnectionID   string    `json:"connection_id"`
	ExternalSource string    `json:"external_source"`
	ExternalID     string    `json:"external_id"`
	TargetItemID   string    `json:"target_item_id"`
	Slug           string    `json:"slug,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
}
