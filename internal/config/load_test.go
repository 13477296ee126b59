package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp switches into a fresh directory holding configs/<name> with content.
func chdirTemp(t *testing.T, name, content string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", name), []byte(content), 0o644))

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(originalWD) })
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	chdirTemp(t, "ledger_test.env", `APP_NAME=ledger-core-test
SERVER_PORT=9090
LOG_LEVEL=debug
KAFKA_BROKERS=kafka1:9092,kafka2:9092
LEDGER_STATEMENT_MAX_PAGE_SIZE=200
AUDIT_SCAN_PAYLOADS_FOR_PII=false
POLICY_DIRECTORY=/etc/ledger/policies
`)

	cfg, err := LoadConfig("ledger_test")
	require.NoError(t, err)

	assert.Equal(t, "ledger-core-test", cfg.Application.Name)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "kafka1:9092,kafka2:9092", cfg.Kafka.Brokers)
	assert.Equal(t, 200, cfg.Ledger.StatementMaxPageSize)
	assert.False(t, cfg.Audit.ScanPayloadsForPII)
	assert.Equal(t, "/etc/ledger/policies", cfg.Policy.Directory)

	// untouched keys keep their defaults
	assert.Equal(t, "development", cfg.Application.Env)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "ledger.commands", cfg.Kafka.CommandTopic)
	assert.Equal(t, "ledger.events", cfg.Kafka.EventTopic)
	assert.Equal(t, 50, cfg.Ledger.StatementDefaultPageSize)
	assert.Equal(t, "REVERSAL-OF-", cfg.Ledger.ReversalReferencePrefix)
	assert.Equal(t, int64(1), cfg.Audit.LockKey)
	assert.Equal(t, "policies/obligations/registry.json", cfg.Policy.ObligationRegistryPath)

	byName, err := LoadConfigWithName("configs/ledger_test")
	require.NoError(t, err)
	assert.Equal(t, "ledger-core-test", byName.Application.Name)

	byNameAndType, err := LoadConfigWithNameAndType("configs/ledger_test", "env")
	require.NoError(t, err)
	assert.Equal(t, "ledger-core-test", byNameAndType.Application.Name)
}

func TestLoadConfig_EnvironmentWins(t *testing.T) {
	chdirTemp(t, "ledger_env.env", "WORKER_POOL_SIZE=4\nAUDIT_VERIFY_WORKERS=2\n")
	t.Setenv("WORKER_POOL_SIZE", "32")

	cfg, err := LoadConfig("ledger_env")
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.WorkerPool.Size)
	assert.Equal(t, 2, cfg.Audit.VerifyWorkers)
}

func TestLoadConfig_InvalidFileValues(t *testing.T) {
	chdirTemp(t, "ledger_bad.env", "LEDGER_TX_RETRY_ATTEMPTS=0\n")

	_, err := LoadConfig("ledger_bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "LEDGER_TX_RETRY_ATTEMPTS must be greater than 0")
}

func TestConfig_DefaultsAreValid(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	assert.NoError(t, fromViper(v).validate())
}

func TestConfig_Validate_CollectsAllViolations(t *testing.T) {
	cfg := &Config{
		Ledger: LedgerConfig{StatementDefaultPageSize: 50, StatementMaxPageSize: 10},
	}

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT must be greater than 0")
	assert.Contains(t, err.Error(), "POSTGRES_URL is required")
	assert.Contains(t, err.Error(), "LEDGER_STATEMENT_MAX_PAGE_SIZE must be at least LEDGER_STATEMENT_DEFAULT_PAGE_SIZE")
	assert.Contains(t, err.Error(), "LEDGER_TX_RETRY_ATTEMPTS must be greater than 0")
	assert.Contains(t, err.Error(), "POLICY_DIRECTORY is required")
}
