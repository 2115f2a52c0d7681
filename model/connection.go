package model

import (
	"time"

	"github.com/suitesync/suitesync/internal/secrets"
)

const (
	ConnectionStatusActive   = "active"
	ConnectionStatusPaused   = "paused"
	ConnectionStatusError    = "error"
	ConnectionStatusArchived = "archived"
)

// Connection binds one SmartSuite solution/table to one Webflow site and
// collection. Credentials are stored encrypted and only decrypted at call
// time.
type Connection struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`

	SourceAccountID    string `json:"source_account_id"`
	SourceTableID      string `json:"source_table_id"`
	TargetSiteID       string `json:"target_site_id"`
	TargetCollectionID string `json:"target_collection_id"`

	SourceAPIKey  secrets.Encrypted `json:"-"`
	TargetAPIKey  secrets.Encrypted `json:"-"`
	WebhookSecret secrets.Encrypted `json:"-"`

	RateLimitPerMin   int `json:"rate_limit_per_min"`
	MaxRetryAttempts  int `json:"max_retry_attempts"`
	RetryBackoffMs    int `json:"retry_backoff_ms"`
	MaxRetryBackoffMs int `json:"max_retry_backoff_ms"`

	// Health bookkeeping, maintained by the processor on every terminal
	// event transition.
	ConsecutiveErrors int        `json:"consecutive_errors"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastErrorAt       *time.Time `json:"last_error_at,omitempty"`
	LastErrorMessage  string     `json:"last_error_message,omitempty"`

	MetaData  map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// IsActive reports whether events for this connection should be processed.
func (c *Connection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

type ConnectionFilter struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}
