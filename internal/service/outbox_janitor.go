package service

import (
	"context"
	"time"

	"moneyflow/internal/core/ports"
	"moneyflow/pkg/logger"
	"moneyflow/pkg/metrics"

	"github.com/rs/zerolog"
)

// JanitorConfig tunes the outbox janitor.
type JanitorConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// OutboxJanitor purges terminal outbox records older than the retention
// window. NEW records are never removed.
type OutboxJanitor struct {
	outboxRepo ports.OutboxRepository
	retention  time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	log        zerolog.Logger
	task       *periodicTask
}

// NewOutboxJanitor creates a new OutboxJanitor.
func NewOutboxJanitor(outboxRepo ports.OutboxRepository, cfg JanitorConfig, m *metrics.Metrics, log zerolog.Logger) *OutboxJanitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}

	j := &OutboxJanitor{
		outboxRepo: outboxRepo,
		retention:  cfg.Retention,
		now:        time.Now,
		metrics:    m,
		log:        logger.Component(log, "outbox_janitor"),
	}
	j.task = newPeriodicTask("outbox_janitor", cfg.Interval, func(ctx context.Context) error {
		_, err := j.RunOnce(ctx)
		return err
	}, j.log)
	return j
}

func (j *OutboxJanitor) Start(ctx context.Context) {
	j.task.start(ctx)
}

func (j *OutboxJanitor) Stop() {
	j.task.stop()
}

// RunOnce deletes PROCESSED and FAILED records created before now - retention.
func (j *OutboxJanitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)

	deleted, err := j.outboxRepo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	j.metrics.OutboxPurged(deleted)
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("outbox records purged")
	}
	return deleted, nil
}
