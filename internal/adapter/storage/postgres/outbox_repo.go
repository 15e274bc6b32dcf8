package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"moneyflow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxRepo implements ports.OutboxRepository.
// Payloads are stored as JSONB and never updated after insert.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Create inserts a record within the caller's transaction.
func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.OutboxRecord) error {
	return r.insert(ctx, tx, rec)
}

// Save inserts a record in its own implicit transaction.
func (r *OutboxRepo) Save(ctx context.Context, rec *domain.OutboxRecord) error {
	return r.insert(ctx, r.pool, rec)
}

func (r *OutboxRepo) insert(ctx context.Context, db execer, rec *domain.OutboxRecord) error {
	if !rec.EventType.IsValid() {
		return fmt.Errorf("insert outbox record: %w: %q", domain.ErrUnknownEventType, rec.EventType)
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	query := `INSERT INTO outbox (id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = db.Exec(ctx, query, rec.ID, rec.EventType, payload, rec.Status, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// ClaimNew locks up to limit NEW records, oldest first. Rows locked by a
// concurrent publisher are skipped, so no two ticks claim the same record.
func (r *OutboxRepo) ClaimNew(ctx context.Context, tx pgx.Tx, limit int) ([]domain.OutboxRecord, error) {
	query := `SELECT id, event_type, payload, status, created_at
		FROM outbox
		WHERE status = 'NEW'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox records: %w", err)
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		var (
			rec       domain.OutboxRecord
			eventType string
			payload   []byte
			status    string
		)
		if err := rows.Scan(&rec.ID, &eventType, &payload, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		rec.EventType = domain.EventType(eventType)
		if rec.Status, err = domain.ParseOutboxStatus(status); err != nil {
			return nil, fmt.Errorf("scan outbox record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode outbox payload %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox records: %w", err)
	}
	return records, nil
}

// MarkStatus moves a NEW record to PROCESSED or FAILED. The status guard in
// the WHERE clause makes a second transition a no-op that reports an error.
func (r *OutboxRepo) MarkStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.OutboxStatus) error {
	if !domain.OutboxStatusNew.CanTransitionTo(status) {
		return fmt.Errorf("%w: NEW -> %s", domain.ErrOutboxTransitionInvalid, status)
	}

	query := `UPDATE outbox SET status = $1 WHERE id = $2 AND status = 'NEW'`

	tag, err := tx.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update outbox status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: record %s is not NEW", domain.ErrOutboxTransitionInvalid, id)
	}
	return nil
}

// DeleteTerminalBefore purges PROCESSED and FAILED records older than cutoff.
// NEW records are never matched regardless of age.
func (r *OutboxRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM outbox
		WHERE status IN ('PROCESSED', 'FAILED') AND created_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal outbox records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns the number of records per status.
func (r *OutboxRepo) CountByStatus(ctx context.Context) (*domain.OutboxStats, error) {
	query := `SELECT status, COUNT(*) FROM outbox GROUP BY status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count outbox records: %w", err)
	}
	defer rows.Close()

	stats := &domain.OutboxStats{}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		switch domain.OutboxStatus(status) {
		case domain.OutboxStatusNew:
			stats.New = count
		case domain.OutboxStatusProcessed:
			stats.Processed = count
		case domain.OutboxStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox counts: %w", err)
	}
	return stats, nil
}
