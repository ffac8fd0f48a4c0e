// Package curve is the facade that assembles the envelope assembler, the
// PII transform engine, the transactional outbox, and the broker
// dispatcher into one embeddable library, generalizing the event-service's
// cmd/main.go NewApp builder (config.Load -> logger.Init -> wire each
// dependency in turn -> return one struct holding them all, retrying the
// broker dial a bounded number of times before giving up) from an HTTP
// service's dependency graph to curve's own four subsystems.
package curve

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/baechuer/curve/broker"
	"github.com/baechuer/curve/codec"
	"github.com/baechuer/curve/config"
	"github.com/baechuer/curve/ctxprovider"
	"github.com/baechuer/curve/envelope"
	"github.com/baechuer/curve/event"
	"github.com/baechuer/curve/metrics"
	"github.com/baechuer/curve/outbox"
	outboxpg "github.com/baechuer/curve/outbox/postgres"
	"github.com/baechuer/curve/pii"
	"github.com/baechuer/curve/pii/kms"
	"github.com/baechuer/curve/retry"
	"github.com/baechuer/curve/snowflake"
)

// brokerDialRetries and brokerDialBackoff mirror event-service's
// cmd/main.go retry loop around rabbitpub.NewPublisher (15 attempts,
// 2s apart) rather than failing the whole process on one transient dial
// error during startup.
const (
	brokerDialRetries = 15
	brokerDialBackoff = 2 * time.Second

	// snowflakeEpochYear (January 1, UTC) anchors the 41-bit millisecond timestamp field;
	// changing it after ids have been generated and persisted breaks their
	// ordering guarantee, so it is fixed rather than configurable.
	snowflakeEpochYear = 2024
)

// Curve bundles every subsystem this process needs to assemble, serialize,
// and durably deliver events. Build one with New; it is safe for
// concurrent use once constructed. OutboxPublisher and OutboxCleanup are
// nil when config.OutboxConfig.Enabled is false.
type Curve struct {
	Config *config.Config

	Assembler  *envelope.Assembler
	Codec      codec.Codec
	PII        *pii.Engine
	Dispatcher *broker.Dispatcher
	Metrics    *metrics.Metrics

	ids *snowflake.Generator

	outboxStore     *outboxpg.Store
	OutboxPublisher *outbox.Publisher
	OutboxCleanup   *outbox.Cleanup

	log zerolog.Logger
}

// IDGenerator exposes the Snowflake generator for callers that need an id
// outside the envelope-assembly path (idempotency keys, correlation ids).
func (c *Curve) IDGenerator() *snowflake.Generator { return c.ids }

// New assembles a Curve from a validated config.Config, dialing the
// broker itself via dialBrokerWithRetry. ctxProvider may be nil, in which
// case every assembled envelope carries an empty Metadata. reg receives
// curve's prometheus collectors; pass prometheus.DefaultRegisterer to
// expose them on the embedding application's own /metrics handler.
func New(ctx context.Context, cfg *config.Config, ctxProvider ctxprovider.Provider, reg prometheus.Registerer, log zerolog.Logger) (*Curve, error) {
	client, err := dialBrokerWithRetry(cfg.Kafka.BrokerURL, cfg.Kafka.Exchange, log)
	if err != nil {
		return nil, fmt.Errorf("curve: broker dial: %w", err)
	}
	return NewWithClient(ctx, cfg, ctxProvider, reg, client, log)
}

// NewWithClient assembles a Curve against an already-constructed broker
// client, skipping New's own dial-with-retry loop — the seam a test
// substitutes a stub broker.Client through, the same way the teacher's
// NewApp(cfg, db) takes a pre-built *sql.DB so main_test.go can hand it a
// sqlmock connection instead of dialing Postgres for real.
func NewWithClient(ctx context.Context, cfg *config.Config, ctxProvider ctxprovider.Provider, reg prometheus.Registerer, client broker.Client, log zerolog.Logger) (*Curve, error) {
	log = log.With().Str("component", "curve").Logger()

	ids, err := buildIDGenerator(cfg.IDGenerator)
	if err != nil {
		return nil, fmt.Errorf("curve: snowflake generator: %w", err)
	}

	keyProvider, err := buildKeyProvider(ctx, cfg.PII)
	if err != nil {
		return nil, fmt.Errorf("curve: pii key provider: %w", err)
	}
	var piiEngine *pii.Engine
	if cfg.PII.Enabled {
		piiEngine = pii.NewEngine(keyProvider, cfg.PII.Salt)
	}

	wireCodec, err := buildCodec(cfg.Serde, piiEngine)
	if err != nil {
		return nil, err
	}

	assembler := envelope.New(ids, snowflake.SystemClock, ctxProvider)
	curveMetrics := metrics.New(reg)

	dispCfg := dispatcherConfig(cfg.Kafka, cfg.Retry)
	if cfg.Kafka.BackupS3Enabled {
		s3Writer, err := broker.NewS3BackupWriter(ctx, cfg.Kafka.BackupS3Bucket, cfg.Kafka.BackupS3Prefix)
		if err != nil {
			return nil, fmt.Errorf("curve: s3 backup writer: %w", err)
		}
		dispCfg.ObjectBackup = s3Writer
	}
	dispatcher := broker.NewDispatcher(dispCfg, client, wireCodec, curveMetrics, log)
	dispatcher.SetReady(true)

	c := &Curve{
		Config:     cfg,
		Assembler:  assembler,
		Codec:      wireCodec,
		PII:        piiEngine,
		Dispatcher: dispatcher,
		Metrics:    curveMetrics,
		ids:        ids,
		log:        log,
	}

	if cfg.Outbox.Enabled {
		if err := c.wireOutbox(ctx, cfg); err != nil {
			dispatcher.Shutdown()
			return nil, err
		}
	}

	return c, nil
}

func buildIDGenerator(cfg config.IDGeneratorConfig) (*snowflake.Generator, error) {
	workerID := cfg.WorkerID
	if cfg.AutoGenerate {
		id, err := snowflake.WorkerIDFromMAC()
		if err != nil {
			return nil, fmt.Errorf("derive worker id from MAC: %w", err)
		}
		workerID = id
	}
	epoch := time.Date(snowflakeEpochYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	return snowflake.New(epoch, workerID)
}

func buildCodec(cfg config.SerdeConfig, engine *pii.Engine) (codec.Codec, error) {
	switch cfg.Type {
	case config.SerdeJSON, "":
		return codec.NewJSONCodec(engine), nil
	default:
		return nil, fmt.Errorf("curve: serde type %q needs an externally supplied schema-registry marshaller; construct codec.NewSchemaCodec directly instead of curve.New", cfg.Type)
	}
}

// wireOutbox connects to Postgres, ensures the schema per
// OutboxConfig.InitializeSchema, and constructs the publisher loop and
// cleanup reaper. Neither is started here — see Start.
func (c *Curve) wireOutbox(ctx context.Context, cfg *config.Config) error {
	pool, err := pgxpool.New(ctx, cfg.Outbox.DatabaseURL)
	if err != nil {
		return fmt.Errorf("curve: outbox db connect: %w", err)
	}
	store := outboxpg.New(pool)
	if err := store.EnsureSchema(ctx, outboxpg.SchemaMode(cfg.Outbox.InitializeSchema)); err != nil {
		return fmt.Errorf("curve: outbox schema: %w", err)
	}
	c.outboxStore = store

	if cfg.Outbox.PublisherEnabled {
		pub := outbox.NewPublisher(store, broker.OutboxSender{Dispatcher: c.Dispatcher}, outbox.PublisherConfig{
			PollInterval:    cfg.Outbox.PollInterval,
			BatchSize:       cfg.Outbox.BatchSize,
			DynamicBatching: cfg.Outbox.DynamicBatchingEnabled,
			SendTimeout:     cfg.Outbox.SendTimeout,
			RetryPolicy:     retryPolicyFrom(cfg.Retry),
			MaxRetries:      cfg.Outbox.MaxRetries,
			BreakerEnabled:  cfg.Outbox.CircuitBreakerEnabled,
		}, c.log)
		pub.SetMetrics(c.Metrics)
		c.OutboxPublisher = pub
	}

	if cfg.Outbox.CleanupEnabled {
		c.OutboxCleanup = outbox.NewCleanup(store, outbox.CleanupConfig{
			Cron:          cfg.Outbox.CleanupCron,
			RetentionDays: cfg.Outbox.RetentionDays,
		}, c.log)
	}
	return nil
}

// Start launches the outbox publisher loop and cleanup reaper as
// background goroutines, if configured. It returns immediately; both
// stop when ctx is canceled.
func (c *Curve) Start(ctx context.Context) error {
	if c.OutboxPublisher != nil {
		go c.OutboxPublisher.Run(ctx)
	}
	if c.OutboxCleanup != nil {
		if err := c.OutboxCleanup.Start(ctx); err != nil {
			return fmt.Errorf("curve: start outbox cleanup: %w", err)
		}
	}
	return nil
}

// Save persists record as part of the caller's own database transaction,
// matching the transactional-outbox contract: the caller's business write
// and this call must share one transaction. Only usable when the outbox
// is enabled.
func (c *Curve) Save(ctx context.Context, record outbox.Record) error {
	if c.outboxStore == nil {
		return fmt.Errorf("curve: outbox is not enabled")
	}
	return c.outboxStore.Save(ctx, record)
}

// Publish assembles and dispatches payload directly, bypassing the
// outbox — for callers that accept at-least-once delivery without the
// transactional guarantee (e.g. background jobs with no accompanying
// database write).
func (c *Curve) Publish(ctx context.Context, payload event.Payload, severity event.Severity) error {
	env, err := c.Assembler.Build(ctx, payload, severity)
	if err != nil {
		return err
	}
	return c.Dispatcher.Publish(ctx, env)
}

// Health reports the dispatcher's view of broker reachability, for an
// embedding application's own health endpoint.
func (c *Curve) Health(ctx context.Context) broker.HealthStatus {
	return c.Dispatcher.Health(ctx)
}

// Close shuts down the dispatcher (draining async/DLQ executors within
// their grace period) and releases the outbox database pool, if any.
func (c *Curve) Close() {
	c.Dispatcher.Shutdown()
	if c.outboxStore != nil {
		c.outboxStore.Close()
	}
}

func dispatcherConfig(k config.KafkaConfig, r config.RetryConfig) broker.Config {
	return broker.Config{
		Topic:         k.Topic,
		DLQTopic:      k.DLQTopic,
		AsyncMode:     k.AsyncMode,
		AsyncTimeout:  time.Duration(k.AsyncTimeoutMS) * time.Millisecond,
		SyncTimeout:   time.Duration(k.SyncTimeoutSeconds) * time.Second,
		AsyncWorkers:  k.AsyncWorkers,
		DLQWorkers:    k.DLQExecutorThreads,
		ShutdownGrace: time.Duration(k.DLQExecutorShutdownTimeoutS) * time.Second,
		RetryPolicy:   retryPolicyFrom(r),
		BackupDir:     k.DLQBackupPath,
		IsProduction:  k.IsProduction,
	}
}

func retryPolicyFrom(r config.RetryConfig) retry.Policy {
	return retry.Policy{
		InitialInterval: r.InitialInterval,
		Multiplier:      r.Multiplier,
		MaxInterval:     r.MaxInterval,
		MaxRetries:      r.MaxAttempts,
		JitterFraction:  0.2,
	}
}

// dialBrokerWithRetry mirrors event-service's cmd/main.go dial loop
// around rabbitpub.NewPublisher: a handful of attempts a few seconds
// apart before surfacing the error, so a broker that is still coming up
// alongside this process doesn't abort startup outright.
func dialBrokerWithRetry(url, exchange string, log zerolog.Logger) (broker.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= brokerDialRetries; attempt++ {
		client, err := broker.NewAMQPClient(url, exchange)
		if err == nil {
			return client, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("broker dial failed, retrying")
		time.Sleep(brokerDialBackoff)
	}
	return nil, fmt.Errorf("broker unreachable after %d attempts: %w", brokerDialRetries, lastErr)
}

func buildKeyProvider(ctx context.Context, cfg config.PIIConfig) (pii.KeyProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if !cfg.KMSEnabled {
		if len(cfg.DefaultKey) != 32 {
			return nil, fmt.Errorf("curve.pii.crypto.default-key must be set to a 32-byte key when kms is disabled")
		}
		return kms.NewStaticProvider(cfg.DefaultKey)
	}
	switch cfg.KMSType {
	case config.KMSAWS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return kms.NewAWSProvider(awsCfg, cfg.AWSKMSKeyARN), nil
	case config.KMSVault:
		return kms.NewVaultProvider(cfg.VaultAddr, cfg.VaultToken, cfg.VaultKeyID)
	default:
		return nil, fmt.Errorf("unrecognized curve.pii.kms.type %q", cfg.KMSType)
	}
}
