package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/logger"
	"moneyflow/pkg/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PublisherConfig tunes the outbox publisher. Zero values fall back to
// defaults.
type PublisherConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// PublishResult summarizes one publisher tick.
type PublishResult struct {
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// OutboxPublisher forwards NEW outbox records to a notification sink.
// Every record gets exactly one delivery attempt; failures are terminal.
type OutboxPublisher struct {
	outboxRepo  ports.OutboxRepository
	transactor  ports.DBTransactor
	sink        ports.NotificationSink
	batchSize   int
	concurrency int
	metrics     *metrics.Metrics
	log         zerolog.Logger
	task        *periodicTask
}

// NewOutboxPublisher creates a new OutboxPublisher.
func NewOutboxPublisher(
	outboxRepo ports.OutboxRepository,
	transactor ports.DBTransactor,
	sink ports.NotificationSink,
	cfg PublisherConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *OutboxPublisher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}

	p := &OutboxPublisher{
		outboxRepo:  outboxRepo,
		transactor:  transactor,
		sink:        sink,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		metrics:     m,
		log:         logger.Component(log, "outbox_publisher"),
	}
	p.task = newPeriodicTask("outbox_publisher", cfg.Interval, func(ctx context.Context) error {
		_, err := p.RunOnce(ctx)
		return err
	}, p.log)
	return p
}

// Start begins polling on the configured interval.
func (p *OutboxPublisher) Start(ctx context.Context) {
	p.task.start(ctx)
}

// Stop halts polling and waits for the current tick to finish.
func (p *OutboxPublisher) Stop() {
	p.task.stop()
}

// RunOnce claims a batch of NEW records, delivers them concurrently, then
// marks each PROCESSED or FAILED. Row locks from the claim keep concurrent
// publishers off the batch until commit. Every mark runs in its own
// savepoint, so a failed mark leaves only that record NEW for the next tick.
func (p *OutboxPublisher) RunOnce(ctx context.Context) (PublishResult, error) {
	var result PublishResult
	start := time.Now()
	defer func() { p.metrics.ObserveOutboxTick(time.Since(start).Seconds()) }()

	dbTx, err := p.transactor.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin outbox tick: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	records, err := p.outboxRepo.ClaimNew(ctx, dbTx, p.batchSize)
	if err != nil {
		return result, err
	}
	result.Claimed = len(records)
	if len(records) == 0 {
		return result, dbTx.Commit(ctx)
	}

	outcomes := make([]domain.OutboxStatus, len(records))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range records {
		g.Go(func() error {
			outcomes[i] = p.deliver(ctx, &records[i])
			return nil
		})
	}
	_ = g.Wait()

	var (
		marked  []domain.OutboxStatus
		markErr error
	)
	for i := range records {
		rec := &records[i]
		if err := p.mark(ctx, dbTx, rec, outcomes[i]); err != nil {
			p.log.Error().Err(err).
				Str("outbox_id", rec.ID.String()).
				Str("outcome", string(outcomes[i])).
				Msg("failed to mark outbox record, it stays NEW")
			markErr = errors.Join(markErr, fmt.Errorf("mark outbox record %s: %w", rec.ID, err))
			continue
		}
		marked = append(marked, rec.Status)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit outbox tick: %w", err)
	}

	for _, status := range marked {
		p.metrics.OutboxDelivered(p.sink.Name(), string(status))
		if status == domain.OutboxStatusProcessed {
			result.Processed++
		} else {
			result.Failed++
		}
	}

	p.log.Debug().
		Int("claimed", result.Claimed).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("outbox tick complete")
	return result, markErr
}

func (p *OutboxPublisher) mark(ctx context.Context, dbTx pgx.Tx, rec *domain.OutboxRecord, outcome domain.OutboxStatus) error {
	if err := rec.Transition(outcome); err != nil {
		return err
	}

	sp, err := dbTx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	defer sp.Rollback(ctx) //nolint:errcheck

	if err := p.outboxRepo.MarkStatus(ctx, sp, rec.ID, rec.Status); err != nil {
		return err
	}
	return sp.Commit(ctx)
}

func (p *OutboxPublisher) deliver(ctx context.Context, rec *domain.OutboxRecord) domain.OutboxStatus {
	if err := p.sink.Deliver(ctx, rec.Payload); err != nil {
		p.log.Warn().Err(err).
			Str("outbox_id", rec.ID.String()).
			Str("event_type", string(rec.EventType)).
			Str("error_code", string(domain.ErrCodeDeliveryFailure)).
			Msg("outbox delivery failed")
		return domain.OutboxStatusFailed
	}
	return domain.OutboxStatusProcessed
}

// Stats implements ports.OutboxMonitor.
func (p *OutboxPublisher) Stats(ctx context.Context) (*domain.OutboxStats, error) {
	return p.outboxRepo.CountByStatus(ctx)
}
