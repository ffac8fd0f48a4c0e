package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/curve/breaker"
	"github.com/baechuer/curve/retry"
)

// PublisherConfig controls one Publisher's iteration behavior.
type PublisherConfig struct {
	PollInterval    time.Duration
	BatchSize       int // base size, clamped to [1, 1000] by config validation
	DynamicBatching bool
	SendTimeout     time.Duration
	RetryPolicy     retry.Policy
	MaxRetries      int
	BreakerEnabled  bool
	OpenDuration    time.Duration
}

// Publisher is the single background task per process that leases rows
// from a Store and hands them to a Sender, retrying or failing according
// to RetryPolicy and gating all broker calls through a circuit breaker.
type Publisher struct {
	store   Store
	sender  Sender
	cfg     PublisherConfig
	breaker *breaker.Breaker
	log     zerolog.Logger
	metrics Metrics
}

// SetMetrics attaches m so subsequent iterations report pending-count and
// published-count gauges and the circuit breaker's state. Safe to leave
// unset; every call site guards against a nil Metrics.
func (p *Publisher) SetMetrics(m Metrics) { p.metrics = m }

// NewPublisher constructs a Publisher. Set cfg.BreakerEnabled to false to
// run without breaker gating.
func NewPublisher(store Store, sender Sender, cfg PublisherConfig, log zerolog.Logger) *Publisher {
	var b *breaker.Breaker
	if cfg.BreakerEnabled {
		openDuration := cfg.OpenDuration
		if openDuration == 0 {
			openDuration = 60 * time.Second
		}
		b = breaker.New(openDuration)
	}
	return &Publisher{
		store:   store,
		sender:  sender,
		cfg:     cfg,
		breaker: b,
		log:     log.With().Str("component", "outbox_publisher").Logger(),
	}
}

// Run blocks, polling every PollInterval until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("stopped")
			return
		case <-ticker.C:
			if err := p.iterate(ctx); err != nil {
				p.log.Warn().Err(err).Msg("outbox iteration failed")
			}
		}
	}
}

// iterate runs exactly one poll cycle: breaker gate, batch-size
// computation, lease, per-row dispatch, and breaker update.
func (p *Publisher) iterate(ctx context.Context) error {
	if p.breaker != nil && !p.breaker.Allow() {
		return nil
	}

	pending, err := p.store.CountPending(ctx)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.SetOutboxPending(pending)
	}
	size := computeBatchSize(p.cfg.BatchSize, pending, p.cfg.DynamicBatching)

	now := time.Now()
	rows, err := p.store.LeaseBatch(ctx, size, now)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var published []uint64
	for _, row := range rows {
		sendCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.SendTimeout > 0 {
			sendCtx, cancel = context.WithTimeout(ctx, p.cfg.SendTimeout)
		}
		err := p.sender.Send(sendCtx, row)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			published = append(published, row.ID)
			if p.breaker != nil {
				p.breaker.RecordSuccess()
			}
			continue
		}

		if p.breaker != nil {
			p.breaker.RecordFailure()
		}
		p.handleFailure(ctx, row, err)
	}

	if p.breaker != nil && p.metrics != nil {
		p.metrics.ObserveCircuitState(p.breaker.CurrentState())
	}

	if len(published) > 0 {
		if err := p.store.MarkPublished(ctx, published); err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.IncOutboxPublished(len(published))
		}
	}
	return nil
}

func (p *Publisher) handleFailure(ctx context.Context, row Record, sendErr error) {
	maxRetries := p.cfg.MaxRetries
	if row.RetryCount+1 >= maxRetries {
		if err := p.store.MarkFailed(ctx, row.ID, sendErr.Error()); err != nil {
			p.log.Error().Err(err).Uint64("outbox_id", row.ID).Msg("mark_failed failed")
		}
		p.log.Error().Uint64("outbox_id", row.ID).Int("retry_count", row.RetryCount).Err(sendErr).Msg("outbox row moved to FAILED")
		return
	}

	nextRetryAt := time.Now().Add(p.cfg.RetryPolicy.NextDelay(row.RetryCount))
	if err := p.store.MarkRetry(ctx, row.ID, nextRetryAt, sendErr.Error()); err != nil {
		p.log.Error().Err(err).Uint64("outbox_id", row.ID).Msg("mark_retry failed")
		return
	}
	p.log.Warn().Uint64("outbox_id", row.ID).Int("retry_count", row.RetryCount).Time("next_retry_at", nextRetryAt).Err(sendErr).Msg("outbox publish failed; scheduled retry")
}
