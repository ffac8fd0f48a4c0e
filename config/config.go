// Package config loads and validates curve's flat configuration namespace,
// rooted at curve.*: typed fields, small getEnv/getInt/getBool/getDuration
// helpers, godotenv.Load() best-effort, and fail-fast validation that
// names the offending key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SchemaMode controls outbox DDL lifecycle.
type SchemaMode string

const (
	SchemaEmbedded SchemaMode = "embedded"
	SchemaAlways   SchemaMode = "always"
	SchemaNever    SchemaMode = "never"
)

// SerdeType selects the wire codec.
type SerdeType string

const (
	SerdeJSON     SerdeType = "JSON"
	SerdeAvro     SerdeType = "AVRO"
	SerdeProtobuf SerdeType = "PROTOBUF"
)

// KMSType selects the envelope-encryption key provider.
type KMSType string

const (
	KMSNone  KMSType = ""
	KMSAWS   KMSType = "aws"
	KMSVault KMSType = "vault"
)

type KafkaConfig struct {
	BrokerURL                   string
	Exchange                    string
	Topic                       string
	DLQTopic                    string
	Retries                     int
	RetryBackoffMS              int
	RequestTimeoutMS            int
	AsyncMode                   bool
	AsyncWorkers                int
	AsyncTimeoutMS              int
	SyncTimeoutSeconds          int
	DLQBackupPath               string
	DLQExecutorThreads          int
	DLQExecutorShutdownTimeoutS int
	IsProduction                bool
	BackupS3Enabled             bool
	BackupS3Bucket              string
	BackupS3Prefix              string
}

type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

type IDGeneratorConfig struct {
	WorkerID      int
	AutoGenerate  bool
}

type PIIConfig struct {
	Enabled        bool
	DefaultKey     []byte // decoded, must be exactly 32 bytes if set
	Salt           string
	KMSEnabled     bool
	KMSType        KMSType
	VaultAddr      string
	VaultToken     string
	VaultKeyID     string
	AWSKMSKeyARN   string
}

type OutboxConfig struct {
	Enabled                bool
	DatabaseURL            string
	PublisherEnabled       bool
	InitializeSchema       SchemaMode
	PollInterval           time.Duration
	BatchSize              int
	MaxRetries             int
	SendTimeout            time.Duration
	DynamicBatchingEnabled bool
	CircuitBreakerEnabled  bool
	CleanupEnabled         bool
	RetentionDays          int
	CleanupCron            string
}

type SerdeConfig struct {
	Type             SerdeType
	SchemaRegistryURL string
}

// Config is the fully validated curve.* configuration surface.
type Config struct {
	Enabled bool

	Kafka       KafkaConfig
	Retry       RetryConfig
	IDGenerator IDGeneratorConfig
	PII         PIIConfig
	Outbox      OutboxConfig
	Serde       SerdeConfig
}

// Load reads curve.* settings from the environment (CURVE_* prefixed,
// godotenv-loaded best-effort via "_ = godotenv.Load()") and validates
// cross-field constraints once. Any validation failure returns an
// error naming the offending key and value, and aborts initialization.
// Integer, float and duration values that do not parse fall back to their
// defaults without an error; a boolean that does not parse panics.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Enabled: getBool("CURVE_ENABLED", true),
		Kafka: KafkaConfig{
			BrokerURL:                   getEnv("CURVE_KAFKA_BROKER_URL", ""),
			Exchange:                    getEnv("CURVE_KAFKA_EXCHANGE", "curve.events"),
			Topic:                       getEnv("CURVE_KAFKA_TOPIC", ""),
			DLQTopic:                    getEnv("CURVE_KAFKA_DLQ_TOPIC", ""),
			Retries:                     getInt("CURVE_KAFKA_RETRIES", 3),
			RetryBackoffMS:              getInt("CURVE_KAFKA_RETRY_BACKOFF_MS", 100),
			RequestTimeoutMS:            getInt("CURVE_KAFKA_REQUEST_TIMEOUT_MS", 5000),
			AsyncMode:                   getBool("CURVE_KAFKA_ASYNC_MODE", false),
			AsyncWorkers:                getInt("CURVE_KAFKA_ASYNC_WORKERS", 4),
			AsyncTimeoutMS:              getInt("CURVE_KAFKA_ASYNC_TIMEOUT_MS", 5000),
			SyncTimeoutSeconds:          getInt("CURVE_KAFKA_SYNC_TIMEOUT_SECONDS", 10),
			DLQBackupPath:               getEnv("CURVE_KAFKA_DLQ_BACKUP_PATH", ""),
			DLQExecutorThreads:          getInt("CURVE_KAFKA_DLQ_EXECUTOR_THREADS", 2),
			DLQExecutorShutdownTimeoutS: getInt("CURVE_KAFKA_DLQ_EXECUTOR_SHUTDOWN_TIMEOUT_SECONDS", 10),
			IsProduction:                getBool("CURVE_KAFKA_IS_PRODUCTION", false),
			BackupS3Enabled:             getBool("CURVE_KAFKA_BACKUP_S3_ENABLED", false),
			BackupS3Bucket:              getEnv("CURVE_KAFKA_BACKUP_S3_BUCKET", ""),
			BackupS3Prefix:              getEnv("CURVE_KAFKA_BACKUP_S3_PREFIX", ""),
		},
		Retry: RetryConfig{
			MaxAttempts:     getInt("CURVE_RETRY_MAX_ATTEMPTS", 5),
			InitialInterval: getDuration("CURVE_RETRY_INITIAL_INTERVAL", 200*time.Millisecond),
			Multiplier:      getFloat("CURVE_RETRY_MULTIPLIER", 2.0),
			MaxInterval:     getDuration("CURVE_RETRY_MAX_INTERVAL", 30*time.Second),
		},
		IDGenerator: IDGeneratorConfig{
			WorkerID:     getInt("CURVE_ID_GENERATOR_WORKER_ID", 0),
			AutoGenerate: getBool("CURVE_ID_GENERATOR_AUTO_GENERATE", false),
		},
		PII: PIIConfig{
			Enabled:    getBool("CURVE_PII_ENABLED", false),
			Salt:       getEnv("CURVE_PII_CRYPTO_SALT", ""),
			KMSEnabled: getBool("CURVE_PII_KMS_ENABLED", false),
			KMSType:    KMSType(getEnv("CURVE_PII_KMS_TYPE", "")),
			VaultAddr:  getEnv("CURVE_PII_KMS_VAULT_ADDR", ""),
			VaultToken: getEnv("CURVE_PII_KMS_VAULT_TOKEN", ""),
			VaultKeyID: getEnv("CURVE_PII_KMS_VAULT_KEY_ID", ""),
			AWSKMSKeyARN: getEnv("CURVE_PII_KMS_AWS_KEY_ARN", ""),
		},
		Outbox: OutboxConfig{
			Enabled:                getBool("CURVE_OUTBOX_ENABLED", false),
			DatabaseURL:            getEnv("CURVE_OUTBOX_DATABASE_URL", ""),
			PublisherEnabled:       getBool("CURVE_OUTBOX_PUBLISHER_ENABLED", true),
			InitializeSchema:       SchemaMode(getEnv("CURVE_OUTBOX_INITIALIZE_SCHEMA", string(SchemaNever))),
			PollInterval:           getDuration("CURVE_OUTBOX_POLL_INTERVAL_MS_DUR", 0) ,
			BatchSize:              getInt("CURVE_OUTBOX_BATCH_SIZE", 50),
			MaxRetries:             getInt("CURVE_OUTBOX_MAX_RETRIES", 8),
			SendTimeout:            getDuration("CURVE_OUTBOX_SEND_TIMEOUT", 5*time.Second),
			DynamicBatchingEnabled: getBool("CURVE_OUTBOX_DYNAMIC_BATCHING_ENABLED", true),
			CircuitBreakerEnabled:  getBool("CURVE_OUTBOX_CIRCUIT_BREAKER_ENABLED", true),
			CleanupEnabled:         getBool("CURVE_OUTBOX_CLEANUP_ENABLED", true),
			RetentionDays:          getInt("CURVE_OUTBOX_RETENTION_DAYS", 7),
			CleanupCron:            getEnv("CURVE_OUTBOX_CLEANUP_CRON", "0 0 * * *"),
		},
		Serde: SerdeConfig{
			Type:              SerdeType(getEnv("CURVE_SERDE_TYPE", string(SerdeJSON))),
			SchemaRegistryURL: getEnv("CURVE_SERDE_SCHEMA_REGISTRY_URL", ""),
		},
	}

	if ms := getInt("CURVE_OUTBOX_POLL_INTERVAL_MS", 1000); cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if raw := getEnv("CURVE_PII_CRYPTO_DEFAULT_KEY", ""); raw != "" {
		key, err := decodeBase64(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid curve.pii.crypto.default-key: %w", err)
		}
		cfg.PII.DefaultKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Kafka.Topic) == "" {
		return fmt.Errorf("curve.kafka.topic: must be non-empty")
	}
	if strings.TrimSpace(c.Kafka.BrokerURL) == "" {
		return fmt.Errorf("curve.kafka.broker-url: must be non-empty")
	}
	if c.Kafka.BackupS3Enabled && strings.TrimSpace(c.Kafka.BackupS3Bucket) == "" {
		return fmt.Errorf("curve.kafka.backup.s3-bucket: required when curve.kafka.backup.s3-enabled=true")
	}
	if c.IDGenerator.WorkerID < 0 || c.IDGenerator.WorkerID > 1023 {
		return fmt.Errorf("curve.id-generator.worker-id=%d: must be in [0,1023]", c.IDGenerator.WorkerID)
	}
	if c.PII.Enabled && len(c.PII.DefaultKey) != 0 && len(c.PII.DefaultKey) != 32 {
		return fmt.Errorf("curve.pii.crypto.default-key: decoded length must be exactly 32 bytes, got %d", len(c.PII.DefaultKey))
	}
	if c.PII.KMSEnabled && c.PII.KMSType != KMSAWS && c.PII.KMSType != KMSVault {
		return fmt.Errorf("curve.pii.kms.type=%q: must be one of {aws, vault} when curve.pii.kms.enabled=true", c.PII.KMSType)
	}
	if c.PII.KMSType == KMSVault && c.PII.VaultKeyID != "" && !vaultKeyIDPattern.MatchString(c.PII.VaultKeyID) {
		return fmt.Errorf("curve.pii.kms.vault-key-id=%q: must match [A-Za-z0-9_-]+", c.PII.VaultKeyID)
	}
	if c.Outbox.Enabled {
		if strings.TrimSpace(c.Outbox.DatabaseURL) == "" {
			return fmt.Errorf("curve.outbox.database-url: required when curve.outbox.enabled=true")
		}
		switch c.Outbox.InitializeSchema {
		case SchemaEmbedded, SchemaAlways, SchemaNever:
		default:
			return fmt.Errorf("curve.outbox.initialize-schema=%q: must be one of {embedded, always, never}", c.Outbox.InitializeSchema)
		}
		if c.Outbox.BatchSize < 1 || c.Outbox.BatchSize > 1000 {
			return fmt.Errorf("curve.outbox.batch-size=%d: must be in [1,1000]", c.Outbox.BatchSize)
		}
	}
	switch c.Serde.Type {
	case SerdeJSON, SerdeAvro, SerdeProtobuf:
	default:
		return fmt.Errorf("curve.serde.type=%q: must be one of {JSON, AVRO, PROTOBUF}", c.Serde.Type)
	}
	if c.Serde.Type != SerdeJSON && strings.TrimSpace(c.Serde.SchemaRegistryURL) == "" {
		return fmt.Errorf("curve.serde.schema-registry-url: required when curve.serde.type=%q", c.Serde.Type)
	}
	return nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getFloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		panic(fmt.Errorf("invalid boolean env %s=%q", k, v))
	}
}

func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
