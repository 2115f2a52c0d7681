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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"SUITESYNC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"SUITESYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"SUITESYNC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"SUITESYNC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"SUITESYNC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"SUITESYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SUITESYNC_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"SUITESYNC_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"SUITESYNC_REDIS_SKIP_TLS_VERIFY"`
}

// EncryptionConfig holds the key used by the secret store to protect
// connection credentials at rest. The key must be 64 hex characters
// (32 bytes for AES-256).
type EncryptionConfig struct {
	Key string `json:"key" envconfig:"SUITESYNC_ENCRYPTION_KEY"`
}

// WorkerConfig controls the lock-guarded batch scheduler.
type WorkerConfig struct {
	CronSecret    string `json:"cron_secret" envconfig:"SUITESYNC_WORKER_CRON_SECRET"`
	BatchSize     int    `json:"batch_size" envconfig:"SUITESYNC_WORKER_BATCH_SIZE"`
	Concurrency   int    `json:"concurrency" envconfig:"SUITESYNC_WORKER_CONCURRENCY"`
	LockTimeoutMs int    `json:"lock_timeout_ms" envconfig:"SUITESYNC_WORKER_LOCK_TIMEOUT_MS"`
}

// SyncConfig holds the defaults for per-connection throughput and retry
// behaviour. A connection's own settings take precedence over these.
type SyncConfig struct {
	WriteCapPerMinute int `json:"write_cap_per_minute" envconfig:"SUITESYNC_SYNC_WRITE_CAP_PER_MINUTE"`
	MaxRetryAttempts  int `json:"max_retry_attempts" envconfig:"SUITESYNC_SYNC_MAX_RETRY_ATTEMPTS"`
	RetryBackoffMs    int `json:"retry_backoff_ms" envconfig:"SUITESYNC_SYNC_RETRY_BACKOFF_MS"`
	MaxRetryBackoffMs int `json:"max_retry_backoff_ms" envconfig:"SUITESYNC_SYNC_MAX_RETRY_BACKOFF_MS"`
	CallTimeoutSec    int `json:"call_timeout_sec" envconfig:"SUITESYNC_SYNC_CALL_TIMEOUT_SEC"`
}

type QueueConfig struct {
	NotificationQueue string `json:"notification_queue" envconfig:"SUITESYNC_QUEUE_NOTIFICATION"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"SUITESYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"SUITESYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"SUITESYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"SUITESYNC_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Encryption   EncryptionConfig `json:"encryption"`
	Worker       WorkerConfig     `json:"worker"`
	Sync         SyncConfig       `json:"sync"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

var hexKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("suitesync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called suitesync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "SuiteSync Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Encryption.Key != "" && !hexKeyPattern.MatchString(cnf.Encryption.Key) {
		return fmt.Errorf("encryption key must be 64 lowercase hex characters")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Worker.BatchSize <= 0 {
		cnf.Worker.BatchSize = 25
	}
	if cnf.Worker.Concurrency <= 0 {
		cnf.Worker.Concurrency = 10
	}
	if cnf.Worker.LockTimeoutMs <= 0 {
		cnf.Worker.LockTimeoutMs = 300000 // 5 minutes
	}

	if cnf.Sync.WriteCapPerMinute <= 0 {
		cnf.Sync.WriteCapPerMinute = 50
	}
	if cnf.Sync.MaxRetryAttempts <= 0 {
		cnf.Sync.MaxRetryAttempts = 5
	}
	if cnf.Sync.RetryBackoffMs <= 0 {
		cnf.Sync.RetryBackoffMs = 1000
	}
	if cnf.Sync.MaxRetryBackoffMs <= 0 {
		cnf.Sync.MaxRetryBackoffMs = 60000
	}
	if cnf.Sync.CallTimeoutSec <= 0 {
		cnf.Sync.CallTimeoutSec = 30
	}

	if cnf.Queue.NotificationQueue == "" {
		cnf.Queue.NotificationQueue = "sync:notifications"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	if cnf.Worker.BatchSize <= 0 {
		cnf.Worker.BatchSize = 25
	}
	if cnf.Worker.Concurrency <= 0 {
		cnf.Worker.Concurrency = 10
	}
	if cnf.Worker.LockTimeoutMs <= 0 {
		cnf.Worker.LockTimeoutMs = 300000
	}
	if cnf.Sync.WriteCapPerMinute <= 0 {
		cnf.Sync.WriteCapPerMinute = 50
	}
	if cnf.Sync.MaxRetryAttempts <= 0 {
		cnf.Sync.MaxRetryAttempts = 5
	}
	if cnf.Sync.RetryBackoffMs <= 0 {
		cnf.Sync.RetryBackoffMs = 1000
	}
	if cnf.Sync.MaxRetryBackoffMs <= 0 {
		cnf.Sync.MaxRetryBackoffMs = 60000
	}
	if cnf.Sync.CallTimeoutSec <= 0 {
		cnf.Sync.CallTimeoutSec = 30
	}
	if cnf.Queue.NotificationQueue == "" {
		cnf.Queue.NotificationQueue = "sync:notifications"
	}
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
