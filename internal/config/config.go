// Package config provides configuration structures and validation for the application.
// It handles environment-based configuration for all major components including
// server settings, database connections, message queues, and operational parameters.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration (HTTP server, databases,
// message queues, ledger/audit/policy engines) and is validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Ledger      LedgerConfig
	Audit       AuditConfig
	Policy      PolicyConfig
	Metrics     MetricsConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	CommandTopic      string // Async posting/reversal commands consumed by the ledger processor
	EventTopic        string // Ledger and audit domain events published from the outbox
	NumPartitions     int    // Number of partitions for topics
	ReplicationFactor int    // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string // Topic for Dead Letter Queue
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // Maximum number of retry attempts for outbox messages
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// LedgerConfig contains ledger engine settings
type LedgerConfig struct {
	StatementDefaultPageSize int
	StatementMaxPageSize     int
	ReversalReferencePrefix  string // Used when a reversal request carries no reference
	TxRetryAttempts          int    // Attempts for a posting that hits a serialization failure
}

// AuditConfig contains audit chain settings
type AuditConfig struct {
	LockKey            int64 // pg_advisory_xact_lock key serializing chain appends
	VerifyBatchSize    int
	VerifyWorkers      int
	ScanPayloadsForPII bool
}

// PolicyConfig locates the declarative policy files loaded at startup
type PolicyConfig struct {
	Directory              string
	ObligationRegistryPath string
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// violations accumulates every configuration problem so startup reports them together
type violations []string

func (v *violations) required(key, value string) {
	if value == "" {
		*v = append(*v, key+" is required")
	}
}

func (v *violations) positive(key string, value int64) {
	if value <= 0 {
		*v = append(*v, key+" must be greater than 0")
	}
}

func (v *violations) positiveDuration(key string, value time.Duration) {
	v.positive(key, int64(value))
}

func (v *violations) check(ok bool, message string) {
	if !ok {
		*v = append(*v, message)
	}
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var v violations

	v.positive("SERVER_PORT", int64(c.Server.Port))
	v.positiveDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	v.positiveDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	v.positiveDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	v.positiveDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)

	v.required("KAFKA_BROKERS", c.Kafka.Brokers)
	v.required("KAFKA_COMMAND_TOPIC", c.Kafka.CommandTopic)
	v.required("KAFKA_EVENT_TOPIC", c.Kafka.EventTopic)
	v.required("KAFKA_CONSUMER_GROUP", c.Kafka.ConsumerGroup)
	v.positive("KAFKA_CONSUMER_MIN_BYTES", int64(c.Kafka.MinBytes))
	v.positive("KAFKA_CONSUMER_MAX_BYTES", int64(c.Kafka.MaxBytes))
	v.positiveDuration("KAFKA_CONSUMER_MAX_WAIT", c.Kafka.MaxWait)
	v.required("KAFKA_DLQ_TOPIC", c.Kafka.DLQTopic)

	v.required("POSTGRES_URL", c.Postgres.URL)
	v.positive("POSTGRES_MAX_CONNS", int64(c.Postgres.MaxConns))
	v.positive("POSTGRES_MIN_CONNS", int64(c.Postgres.MinConns))
	v.positiveDuration("POSTGRES_MAX_CONN_LIFETIME", c.Postgres.ConnMaxLifetime)
	v.positiveDuration("POSTGRES_MAX_CONN_IDLE_TIME", c.Postgres.ConnMaxIdleTime)

	v.required("MONGO_URI", c.MongoDB.URI)
	v.required("MONGO_DATABASE", c.MongoDB.Database)
	v.positiveDuration("MONGO_TIMEOUT", c.MongoDB.Timeout)
	v.check(c.MongoDB.MaxPoolSize > 0, "MONGO_MAX_POOL_SIZE must be greater than 0")
	v.check(c.MongoDB.MinPoolSize > 0, "MONGO_MIN_POOL_SIZE must be greater than 0")
	v.positiveDuration("MONGO_MAX_CONN_IDLE_TIME", c.MongoDB.MaxConnIdleTime)

	v.positiveDuration("OUTBOX_POLLING_INTERVAL", c.Outbox.PollingInterval)
	v.positive("OUTBOX_BATCH_SIZE", int64(c.Outbox.BatchSize))
	v.positive("OUTBOX_MAX_RETRY_ATTEMPTS", int64(c.Outbox.MaxRetryAttempts))

	v.positive("WORKER_POOL_SIZE", int64(c.WorkerPool.Size))

	v.positive("LEDGER_STATEMENT_DEFAULT_PAGE_SIZE", int64(c.Ledger.StatementDefaultPageSize))
	v.check(c.Ledger.StatementMaxPageSize >= c.Ledger.StatementDefaultPageSize,
		"LEDGER_STATEMENT_MAX_PAGE_SIZE must be at least LEDGER_STATEMENT_DEFAULT_PAGE_SIZE")
	v.positive("LEDGER_TX_RETRY_ATTEMPTS", int64(c.Ledger.TxRetryAttempts))

	v.positive("AUDIT_VERIFY_BATCH_SIZE", int64(c.Audit.VerifyBatchSize))
	v.positive("AUDIT_VERIFY_WORKERS", int64(c.Audit.VerifyWorkers))

	v.required("POLICY_DIRECTORY", c.Policy.Directory)

	v.check(!c.Metrics.Enabled || c.Metrics.Path != "", "METRICS_PATH is required when metrics are enabled")

	if len(v) > 0 {
		return errors.New(strings.Join(v, ", "))
	}
	return nil
}
