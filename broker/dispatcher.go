package broker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/curve/breaker"
	"github.com/baechuer/curve/codec"
	"github.com/baechuer/curve/event"
	"github.com/baechuer/curve/retry"
)

// Metrics receives per-error-kind counters and circuit-breaker state for
// the health/metrics endpoints (§7 "metrics expose per-kind counters").
// A nil Metrics is valid; every call site guards against it.
type Metrics interface {
	IncError(kind string)
	ObserveCircuitState(state breaker.State)
}

// Config controls one Dispatcher's behavior. Zero values are not usable —
// the curve package builds one from config.Config via dispatcherConfig.
type Config struct {
	Topic    string
	DLQTopic string // empty disables Tier 2 entirely

	AsyncMode      bool
	AsyncTimeout   time.Duration
	SyncTimeout    time.Duration
	AsyncWorkers   int
	DLQWorkers     int
	ShutdownGrace  time.Duration

	RetryPolicy  retry.Policy
	BackupDir    string
	IsProduction bool

	// ObjectBackup, when non-nil, receives every Tier-3 record in
	// addition to the local backup file (spec.md §6 "backup.s3-enabled").
	ObjectBackup ObjectBackupWriter
}

// Dispatcher implements the 3-tier recovery policy: Tier 1 main-topic
// send (retried under RetryPolicy, sync or async per Config.AsyncMode),
// Tier 2 DLQ fallback on definitive Tier-1 failure, Tier 3 on-disk backup
// on DLQ failure.
type Dispatcher struct {
	cfg    Config
	client Client
	codec  codec.Codec
	log    zerolog.Logger

	asyncExec *executor
	dlqExec   *executor

	metrics Metrics
	ready   atomic.Bool
}

// NewDispatcher constructs a Dispatcher. client is dialed/healthy before
// ready flips true; call SetReady once the caller has confirmed that
// (mirrors §5's single atomic "ready" flag, flipped once, read lock-free).
func NewDispatcher(cfg Config, client Client, c codec.Codec, metrics Metrics, log zerolog.Logger) *Dispatcher {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	d := &Dispatcher{
		cfg:     cfg,
		client:  client,
		codec:   c,
		metrics: metrics,
		log:     log.With().Str("component", "broker_dispatcher").Logger(),
	}
	if cfg.AsyncMode {
		d.asyncExec = newExecutor("async-completion", maxInt(cfg.AsyncWorkers, 1), 0, d.log)
	}
	if cfg.DLQTopic != "" {
		d.dlqExec = newExecutor("dlq", maxInt(cfg.DLQWorkers, 2), 0, d.log)
	}
	return d
}

// SetReady flips the dispatcher's readiness flag once the broker client
// has been confirmed healthy. Reads of Ready are lock-free.
func (d *Dispatcher) SetReady(ready bool) { d.ready.Store(ready) }

// Ready reports whether the dispatcher believes the broker client is
// healthy, for the health endpoint.
func (d *Dispatcher) Ready() bool { return d.ready.Load() }

// Publish dispatches env through Tier 1, falling back through Tier 2/3 on
// definitive failure. In sync mode this blocks for the full recovery
// chain; in async mode it submits the chain to the async executor and
// returns immediately, with every downstream failure surfacing only
// through metrics/logging per §7 "in async mode ... never as thrown
// caller-visible errors".
func (d *Dispatcher) Publish(ctx context.Context, env event.Envelope) error {
	body, err := d.codec.Encode(ctx, env)
	if err != nil {
		d.incError("serialization")
		return err
	}
	// published_at is read only now, after the wire bytes are already
	// fixed (SPEC_FULL.md Open Question 2 / spec.md §9: "stamped by the
	// dispatcher immediately before the broker write call, after
	// serialization") — stamping it any earlier would let it leak into
	// the serialized body.
	published := env.WithPublishedAt(time.Now().UTC())
	key := formatEventID(published.EventID)

	if !d.cfg.AsyncMode {
		return d.deliver(ctx, published.EventID, body, key)
	}

	// MDC-like ambient context: captured here at submission time by
	// closing over ctx, handed to the handler running on the dedicated
	// async executor (never the broker client's I/O goroutines), and never
	// touched again by this goroutine — there is nothing to "restore"
	// because Go's context is an explicit value, not thread-local state,
	// so the capture/restore dance the teacher's MDC needs collapses to a
	// plain closure. context.WithoutCancel strips the caller's
	// cancellation/deadline (which belongs to the now-returned Publish
	// call) while preserving its values, so a canceled request context
	// cannot abort work that is, by design, happening after the caller
	// moved on.
	handlerCtx := context.WithoutCancel(ctx)
	submitted := d.asyncExec.Submit(func() {
		if err := d.deliver(handlerCtx, published.EventID, body, key); err != nil {
			d.log.Error().Uint64("event_id", published.EventID).Err(err).Msg("async publish failed after recovery chain")
		}
	})
	if !submitted {
		d.log.Warn().Uint64("event_id", published.EventID).Msg("async executor queue full; publish dropped")
	}
	return nil
}

// DispatchOutboxRecord runs the Tier 1/2/3 chain for bytes already staged
// in the transactional outbox, keyed by key (the outbox row's aggregate
// id, not the event id) so that every event for the same aggregate lands
// on the same partition and preserves send order (§5 "Ordering
// guarantees": "serial publisher + stable key + same partition ⇒ stable
// order"). Used by the outbox.Sender adapter in outbox_sender.go; not
// called directly by Publish, whose non-outbox path keys on event id.
func (d *Dispatcher) DispatchOutboxRecord(ctx context.Context, eventID uint64, key string, body []byte) error {
	return d.deliver(ctx, eventID, body, key)
}

// deliver runs the full Tier 1 -> 2 -> 3 chain for one already-serialized
// event and returns the terminal error, if any survives Tier 3.
func (d *Dispatcher) deliver(ctx context.Context, eventID uint64, body []byte, key string) error {
	sendCtx := ctx
	var cancel context.CancelFunc
	if d.cfg.SyncTimeout > 0 && !d.cfg.AsyncMode {
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SyncTimeout)
	} else if d.cfg.AsyncMode && d.cfg.AsyncTimeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.AsyncTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	tier1Err := retry.Do(sendCtx, d.cfg.RetryPolicy, isRetryableSend, func(ctx context.Context) error {
		return d.client.Publish(ctx, d.cfg.Topic, key, body)
	})
	if tier1Err == nil {
		return nil
	}
	d.incError("broker_terminal")
	d.log.Warn().Uint64("event_id", eventID).Err(tier1Err).Msg("tier-1 send exhausted retries; falling back to DLQ")

	return d.fallbackToDLQ(ctx, eventID, d.cfg.Topic, body, tier1Err)
}

// fallbackToDLQ constructs a DLQ record and dispatches it on the dedicated
// DLQ executor so Tier-2 work never blocks a caller waiting on Tier 1
// (§4.6). If there is no DLQ topic configured, or the DLQ executor itself
// is saturated, the record goes straight to Tier 3.
func (d *Dispatcher) fallbackToDLQ(ctx context.Context, eventID uint64, originalTopic string, originalBody []byte, cause error) error {
	rec := DLQRecord{
		EventID:          eventID,
		OriginalTopic:    originalTopic,
		OriginalPayload:  originalBody,
		ExceptionType:    errorClassName(cause),
		ExceptionMessage: cause.Error(),
		FailedAtMillis:   time.Now().UTC().UnixMilli(),
	}

	if d.cfg.DLQTopic == "" || d.dlqExec == nil {
		return d.fallbackToBackup(ctx, rec)
	}

	done := make(chan error, 1)
	submitted := d.dlqExec.Submit(func() {
		done <- d.sendDLQ(ctx, rec)
	})
	if !submitted {
		return d.fallbackToBackup(ctx, rec)
	}

	var dlqErr error
	select {
	case dlqErr = <-done:
	case <-ctx.Done():
		dlqErr = ctx.Err()
	}
	if dlqErr == nil {
		return nil
	}
	d.incError("dlq_failure")
	d.log.Warn().Uint64("event_id", eventID).Err(dlqErr).Msg("dlq send failed; falling back to local backup")
	return d.fallbackToBackup(ctx, rec)
}

// sendDLQ sends rec's body to the DLQ topic with a single retry attempt,
// per §4.6 "a single retry attempt is granted".
func (d *Dispatcher) sendDLQ(ctx context.Context, rec DLQRecord) error {
	body, err := rec.marshal()
	if err != nil {
		return err
	}
	key := formatEventID(rec.EventID)

	if err := d.client.Publish(ctx, d.cfg.DLQTopic, key, body); err == nil {
		return nil
	}
	return d.client.Publish(ctx, d.cfg.DLQTopic, key, body)
}

// fallbackToBackup writes rec to Tier 3: the local backup file and, when
// configured, the object-store backup, independently of one another. Per
// §7 error kind 6, a write failure is logged either way, but only
// surfaced to the caller when the process is configured as production;
// otherwise it is swallowed after the warning, matching §4.6's framing
// for the narrower permission-only case generalized to every
// backup-write failure. The local file failing does not skip the S3
// upload attempt, and vice versa — each target is independently "last
// resort".
func (d *Dispatcher) fallbackToBackup(ctx context.Context, rec DLQRecord) error {
	var fileErr error
	if d.cfg.BackupDir != "" {
		fileErr = writeBackup(d.cfg.BackupDir, rec)
	} else if d.cfg.ObjectBackup == nil {
		fileErr = writeBackup(d.cfg.BackupDir, rec) // neither target configured; surface the same error as before
	}

	var objErr error
	if d.cfg.ObjectBackup != nil {
		body, marshalErr := rec.marshal()
		if marshalErr != nil {
			objErr = marshalErr
		} else {
			objErr = d.cfg.ObjectBackup.Put(ctx, backupObjectKey(rec.EventID), body)
		}
	}

	if fileErr == nil && objErr == nil {
		return nil
	}
	d.incError("backup_failure")
	if fileErr != nil {
		d.log.Error().Uint64("event_id", rec.EventID).Err(fileErr).Msg("tier-3 local backup write failed")
	}
	if objErr != nil {
		d.log.Error().Uint64("event_id", rec.EventID).Err(objErr).Msg("tier-3 object-store backup write failed")
	}

	// The local file is the only backup target spec.md §3/§4.6 actually
	// requires; S3 is an additive extra. A caller only sees a hard
	// failure in production mode, and only when the file write itself
	// failed — an S3 hiccup alone never blocks the publish path.
	if fileErr != nil && d.cfg.IsProduction {
		return fileErr
	}
	return nil
}

func (d *Dispatcher) incError(kind string) {
	if d.metrics != nil {
		d.metrics.IncError(kind)
	}
}

// Shutdown drains the async and DLQ executors within the configured
// grace period (§5 "awaiting in-flight sends with a grace period").
func (d *Dispatcher) Shutdown() {
	if d.asyncExec != nil {
		d.asyncExec.Shutdown(d.cfg.ShutdownGrace)
	}
	if d.dlqExec != nil {
		d.dlqExec.Shutdown(d.cfg.ShutdownGrace)
	}
	_ = d.client.Close()
}

func isRetryableSend(err error) bool {
	return err != nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
