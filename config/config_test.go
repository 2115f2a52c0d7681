package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitConfigFromEnv(t *testing.T) {
	t.Setenv("SUITESYNC_DATA_SOURCE_DNS", "postgres://postgres:@localhost:5432/suitesync?sslmode=disable")
	t.Setenv("SUITESYNC_REDIS_DNS", "localhost:6379")
	t.Setenv("SUITESYNC_WORKER_CRON_SECRET", "super-secret-worker-token-0123456789")

	err := InitConfig("missing.json")
	assert.NoError(t, err)

	cnf, err := Fetch()
	assert.NoError(t, err)
	assert.Equal(t, "SuiteSync Server", cnf.ProjectName)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, 25, cnf.Worker.BatchSize)
	assert.Equal(t, 10, cnf.Worker.Concurrency)
	assert.Equal(t, 300000, cnf.Worker.LockTimeoutMs)
	assert.Equal(t, 50, cnf.Sync.WriteCapPerMinute)
	assert.Equal(t, 5, cnf.Sync.MaxRetryAttempts)
	assert.Equal(t, 1000, cnf.Sync.RetryBackoffMs)
	assert.Equal(t, 60000, cnf.Sync.MaxRetryBackoffMs)
	assert.Equal(t, "sync:notifications", cnf.Queue.NotificationQueue)
}

func TestInitConfigRequiresDataSource(t *testing.T) {
	os.Unsetenv("SUITESYNC_DATA_SOURCE_DNS")
	os.Unsetenv("SUITESYNC_REDIS_DNS")

	err := loadConfigFromFile("missing.json")
	assert.Error(t, err)
}

func TestInitConfigRejectsBadEncryptionKey(t *testing.T) {
	t.Setenv("SUITESYNC_DATA_SOURCE_DNS", "postgres://postgres:@localhost:5432/suitesync?sslmode=disable")
	t.Setenv("SUITESYNC_REDIS_DNS", "localhost:6379")
	t.Setenv("SUITESYNC_ENCRYPTION_KEY", "not-a-hex-key")

	err := loadConfigFromFile("missing.json")
	assert.Error(t, err)
}
